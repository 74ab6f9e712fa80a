package repository

import (
	"context"
	"errors"
)

var (
	// ErrVersionConflict - запись изменилась между чтением и записью
	ErrVersionConflict = errors.New("document version conflict")
	// ErrNoRecord - запись исчезла к моменту записи
	ErrNoRecord = errors.New("document does not exist")
	// ErrSkipUpdate возвращается из mutate, когда менять нечего
	ErrSkipUpdate = errors.New("skip update")
)

// Record - сериализованный документ в бэкенде
type Record struct {
	ID      string
	Data    []byte
	Version int64
}

// Backend хранит документы по коллекциям. Вторичных индексов нет,
// запросы - полный проход по коллекции в порядке вставки.
type Backend interface {
	List(ctx context.Context, collection string) ([]Record, error)
	Get(ctx context.Context, collection, id string) (*Record, error)
	Insert(ctx context.Context, collection string, rec Record) error
	// Replace пишет rec, только если текущая версия равна expected
	Replace(ctx context.Context, collection string, rec Record, expected int64) error
	Delete(ctx context.Context, collection string, ids ...string) error
	Close() error
}
