package realtime

import "errors"

var (
	ErrConnClosed = errors.New("connection closed")
	ErrSlowClient = errors.New("client send buffer is full")
)

// Conn - живое подключение пользователя. Emit не блокируется:
// событие ставится в очередь на отправку.
type Conn interface {
	ID() string
	UserID() string
	Emit(event string, payload any) error
	// Ack отвечает на событие, которое клиент отправил с номером ack
	Ack(id int64, payload AckPayload) error
}
