package domain

import "time"

type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
)

const PrivateChatName = "Private Chat"

type Chat struct {
	Base
	Name          string    `json:"name"`
	Type          ChatType  `json:"type"`
	Participants  []string  `json:"participants"`
	Avatar        string    `json:"avatar,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
}

func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsPrivatePair проверяет, что это личный чат ровно между a и b (в любом порядке)
func (c *Chat) IsPrivatePair(a, b string) bool {
	if c.Type != ChatTypePrivate || len(c.Participants) != 2 {
		return false
	}
	p0, p1 := c.Participants[0], c.Participants[1]
	return (p0 == a && p1 == b) || (p0 == b && p1 == a)
}

// ChatView - чат с развернутыми участниками и последним сообщением
type ChatView struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Type          ChatType     `json:"type"`
	Participants  []UserView   `json:"participants"`
	Avatar        string       `json:"avatar,omitempty"`
	AvatarURL     string       `json:"avatar_url,omitempty"`
	CreatedBy     string       `json:"created_by,omitempty"`
	LastMessage   *MessageView `json:"last_message,omitempty"`
	LastMessageAt time.Time    `json:"last_message_at"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
