package domain

import (
	"strings"
	"time"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeVoice MessageType = "voice"
	MessageTypeFile  MessageType = "file"
)

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Rank задает порядок статусов, неизвестный статус ниже sent
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	default:
		return 0
	}
}

// Advances - переход строго вперед
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.Rank() > s.Rank()
}

const (
	FileCategoryPhoto    = "photo"
	FileCategoryVideo    = "video"
	FileCategoryDocument = "document"
)

// FileCategoryFromMIME определяет категорию файла по MIME типу
func FileCategoryFromMIME(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return FileCategoryPhoto
	case strings.HasPrefix(mime, "video/"):
		return FileCategoryVideo
	default:
		return FileCategoryDocument
	}
}

type Message struct {
	Base
	ChatID   string        `json:"chat_id"`
	SenderID string        `json:"sender_id"`
	Type     MessageType   `json:"type"`
	Text     string        `json:"text"`
	Status   MessageStatus `json:"status"`
	Read     bool          `json:"read"`

	AudioRef string  `json:"audio_ref,omitempty"`
	Duration float64 `json:"duration,omitempty"`

	FileRef      string `json:"file_ref,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	FileCategory string `json:"file_category,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`

	// Размер голосового или файла в байтах
	Size int64 `json:"size,omitempty"`
}

// MessageView рассылается в событии receive-message
type MessageView struct {
	ID           string        `json:"id"`
	ChatID       string        `json:"chat_id"`
	Sender       *UserProfile  `json:"sender"`
	Type         MessageType   `json:"type"`
	Text         string        `json:"text"`
	Status       MessageStatus `json:"status"`
	Read         bool          `json:"read"`
	AudioRef     string        `json:"audio_ref,omitempty"`
	AudioURL     string        `json:"audio_url,omitempty"`
	Duration     float64       `json:"duration,omitempty"`
	FileRef      string        `json:"file_ref,omitempty"`
	FileURL      string        `json:"file_url,omitempty"`
	FileName     string        `json:"file_name,omitempty"`
	FileCategory string        `json:"file_category,omitempty"`
	MimeType     string        `json:"mime_type,omitempty"`
	Size         int64         `json:"size,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

type StatusUpdate struct {
	MessageID string        `json:"message_id"`
	ChatID    string        `json:"chat_id"`
	Status    MessageStatus `json:"status"`
}
