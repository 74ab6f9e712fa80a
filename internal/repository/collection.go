package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"messenger/internal/domain"
	"messenger/pkg/logger"
)

const maxUpdateAttempts = 3

type DocumentPtr[T any] interface {
	*T
	Meta() *domain.Base
}

// Collection - типизированная коллекция документов поверх Backend.
// Все изменения проходят через один мьютекс коллекции.
type Collection[T any, PT DocumentPtr[T]] struct {
	name    string
	backend Backend
	log     logger.Logger
	now     func() time.Time

	mu sync.Mutex
}

func NewCollection[T any, PT DocumentPtr[T]](name string, backend Backend, log logger.Logger) *Collection[T, PT] {
	return &Collection[T, PT]{
		name:    name,
		backend: backend,
		log:     log.With("collection", name),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *Collection[T, PT]) Name() string {
	return c.name
}

func (c *Collection[T, PT]) Create(ctx context.Context, doc PT) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.create(ctx, doc)
}

func (c *Collection[T, PT]) create(ctx context.Context, doc PT) error {
	meta := doc.Meta()
	meta.ID = uuid.NewString()
	meta.CreatedAt = c.now()
	meta.UpdatedAt = meta.CreatedAt

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", c.name, err)
	}
	if err := c.backend.Insert(ctx, c.name, Record{ID: meta.ID, Data: data, Version: 1}); err != nil {
		c.log.Error("Failed to insert document", "id", meta.ID, "error", err)
		return fmt.Errorf("insert %s document: %w", c.name, err)
	}
	return nil
}

// FindByID возвращает nil без ошибки, если документа нет
func (c *Collection[T, PT]) FindByID(ctx context.Context, id string) (PT, error) {
	rec, err := c.backend.Get(ctx, c.name, id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	if rec == nil {
		return nil, nil
	}
	return c.decode(rec)
}

func (c *Collection[T, PT]) Find(ctx context.Context, pred func(PT) bool) ([]PT, error) {
	recs, err := c.backend.List(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	out := make([]PT, 0, len(recs))
	for i := range recs {
		doc, err := c.decode(&recs[i])
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (c *Collection[T, PT]) FindOne(ctx context.Context, pred func(PT) bool) (PT, error) {
	docs, err := c.Find(ctx, pred)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// FindOrCreate ищет документ и создает его под тем же замком,
// поэтому два параллельных вызова не создадут дубликат.
func (c *Collection[T, PT]) FindOrCreate(ctx context.Context, pred func(PT) bool, build func() PT) (PT, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.FindOne(ctx, pred)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	doc := build()
	if err := c.create(ctx, doc); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Update читает документ, применяет mutate и пишет с проверкой версии.
// Возвращает nil без ошибки, если документа нет. Если mutate вернул
// ErrSkipUpdate, возвращается текущая версия без записи.
func (c *Collection[T, PT]) Update(ctx context.Context, id string, mutate func(PT) error) (PT, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		rec, err := c.backend.Get(ctx, c.name, id)
		if err != nil {
			return nil, fmt.Errorf("get %s/%s: %w", c.name, id, err)
		}
		if rec == nil {
			return nil, nil
		}
		doc, err := c.decode(rec)
		if err != nil {
			return nil, err
		}

		if err := mutate(doc); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				return doc, nil
			}
			return nil, err
		}

		meta := doc.Meta()
		meta.ID = id
		meta.UpdatedAt = c.now()
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode %s document: %w", c.name, err)
		}

		err = c.backend.Replace(ctx, c.name, Record{ID: id, Data: data, Version: rec.Version + 1}, rec.Version)
		switch {
		case err == nil:
			return doc, nil
		case errors.Is(err, ErrNoRecord):
			return nil, nil
		case errors.Is(err, ErrVersionConflict):
			c.log.Warn("Version conflict, retrying update", "id", id, "attempt", attempt)
			continue
		default:
			c.log.Error("Failed to update document", "id", id, "error", err)
			return nil, fmt.Errorf("update %s/%s: %w", c.name, id, err)
		}
	}
	return nil, fmt.Errorf("update %s/%s: %w", c.name, id, ErrVersionConflict)
}

func (c *Collection[T, PT]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.backend.Delete(ctx, c.name, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.name, id, err)
	}
	return nil
}

// DeleteWhere удаляет все документы, подходящие под pred, и возвращает их число
func (c *Collection[T, PT]) DeleteWhere(ctx context.Context, pred func(PT) bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.Find(ctx, pred)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.Meta().ID
	}
	if err := c.backend.Delete(ctx, c.name, ids...); err != nil {
		return 0, fmt.Errorf("delete from %s: %w", c.name, err)
	}
	return len(ids), nil
}

func (c *Collection[T, PT]) decode(rec *Record) (PT, error) {
	doc := PT(new(T))
	if err := json.Unmarshal(rec.Data, doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", c.name, rec.ID, err)
	}
	doc.Meta().ID = rec.ID
	return doc, nil
}
