package realtime

import (
	"encoding/json"
	"strings"

	"github.com/pion/webrtc/v4"
)

// inFrame - входящее событие. Ack > 0 означает, что клиент ждет ответ.
type inFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   int64           `json:"ack,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Ack   int64  `json:"ack,omitempty"`
}

type AckPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

type chatRef struct {
	ChatID string `json:"chat_id"`
}

type userRef struct {
	UserID string `json:"user_id"`
}

type markReadRequest struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

type callUserRequest struct {
	To     string                    `json:"to"`
	Offer  webrtc.SessionDescription `json:"offer"`
	ChatID string                    `json:"chat_id,omitempty"`
}

type acceptCallRequest struct {
	To     string                    `json:"to"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type peerRequest struct {
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type iceCandidateRequest struct {
	To        string                  `json:"to"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// decodeChatID принимает как строку, так и объект {"chat_id": ...}
func decodeChatID(raw json.RawMessage) string {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var ref chatRef
	if err := json.Unmarshal(raw, &ref); err == nil {
		return strings.TrimSpace(ref.ChatID)
	}
	return ""
}

// decodeUserID принимает как строку, так и объект {"user_id": ...}
func decodeUserID(raw json.RawMessage) string {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var ref userRef
	if err := json.Unmarshal(raw, &ref); err == nil {
		return strings.TrimSpace(ref.UserID)
	}
	return ""
}
