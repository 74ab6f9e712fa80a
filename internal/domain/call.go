package domain

import "time"

type CallStatus string

const (
	CallStatusIdle    CallStatus = "idle"
	CallStatusCalling CallStatus = "calling"
	CallStatusRinging CallStatus = "ringing"
	CallStatusActive  CallStatus = "active"
	CallStatusEnded   CallStatus = "ended"
)

// CallSession живет только в памяти, пока идет сигналинг
type CallSession struct {
	CallerID   string     `json:"caller_id"`
	ReceiverID string     `json:"receiver_id"`
	ChatID     string     `json:"chat_id,omitempty"`
	Status     CallStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// StatusFor возвращает статус с точки зрения участника:
// пока у получателя ringing, у звонящего calling
func (s *CallSession) StatusFor(userID string) CallStatus {
	switch {
	case userID != s.CallerID && userID != s.ReceiverID:
		return CallStatusIdle
	case s.Status == CallStatusRinging && userID == s.CallerID:
		return CallStatusCalling
	default:
		return s.Status
	}
}

func (s *CallSession) Peer(userID string) string {
	if userID == s.CallerID {
		return s.ReceiverID
	}
	return s.CallerID
}
