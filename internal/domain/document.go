package domain

import "time"

// Base - общие поля всех хранимых документов
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) Meta() *Base {
	return b
}
