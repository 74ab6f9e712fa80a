package repository

import (
	"context"
	"sort"

	"messenger/internal/domain"
	"messenger/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// ListByChat возвращает сообщения чата по возрастанию времени создания
	ListByChat(ctx context.Context, chatID string) ([]*domain.Message, error)
	Update(ctx context.Context, id string, mutate func(*domain.Message) error) (*domain.Message, error)
	Delete(ctx context.Context, id string) error
	DeleteByChat(ctx context.Context, chatID string) (int, error)
}

type messageRepository struct {
	messages *Collection[domain.Message, *domain.Message]
}

func NewMessageRepository(backend Backend, log logger.Logger) MessageRepository {
	return &messageRepository{messages: NewCollection[domain.Message]("messages", backend, log)}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return r.messages.Create(ctx, msg)
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	return r.messages.FindByID(ctx, id)
}

func (r *messageRepository) ListByChat(ctx context.Context, chatID string) ([]*domain.Message, error) {
	msgs, err := r.messages.Find(ctx, func(m *domain.Message) bool {
		return m.ChatID == chatID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

func (r *messageRepository) Update(ctx context.Context, id string, mutate func(*domain.Message) error) (*domain.Message, error) {
	return r.messages.Update(ctx, id, mutate)
}

func (r *messageRepository) Delete(ctx context.Context, id string) error {
	return r.messages.Delete(ctx, id)
}

func (r *messageRepository) DeleteByChat(ctx context.Context, chatID string) (int, error) {
	return r.messages.DeleteWhere(ctx, func(m *domain.Message) bool {
		return m.ChatID == chatID
	})
}
