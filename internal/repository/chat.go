package repository

import (
	"context"

	"messenger/internal/domain"
	"messenger/pkg/logger"
)

type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat) error
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
	// FindOrCreatePrivate атомарно ищет личный чат пары a, b или создает его через build
	FindOrCreatePrivate(ctx context.Context, a, b string, build func() *domain.Chat) (*domain.Chat, bool, error)
	ListByParticipant(ctx context.Context, userID string) ([]*domain.Chat, error)
	Update(ctx context.Context, id string, mutate func(*domain.Chat) error) (*domain.Chat, error)
	Delete(ctx context.Context, id string) error
}

type chatRepository struct {
	chats *Collection[domain.Chat, *domain.Chat]
}

func NewChatRepository(backend Backend, log logger.Logger) ChatRepository {
	return &chatRepository{chats: NewCollection[domain.Chat]("chats", backend, log)}
}

func (r *chatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	return r.chats.Create(ctx, chat)
}

func (r *chatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	return r.chats.FindByID(ctx, id)
}

func (r *chatRepository) FindOrCreatePrivate(ctx context.Context, a, b string, build func() *domain.Chat) (*domain.Chat, bool, error) {
	return r.chats.FindOrCreate(ctx, func(c *domain.Chat) bool {
		return c.IsPrivatePair(a, b)
	}, build)
}

func (r *chatRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.Chat, error) {
	return r.chats.Find(ctx, func(c *domain.Chat) bool {
		return c.HasParticipant(userID)
	})
}

func (r *chatRepository) Update(ctx context.Context, id string, mutate func(*domain.Chat) error) (*domain.Chat, error) {
	return r.chats.Update(ctx, id, mutate)
}

func (r *chatRepository) Delete(ctx context.Context, id string) error {
	return r.chats.Delete(ctx, id)
}
