package repository

import (
	"context"
	"strings"

	"messenger/internal/domain"
	"messenger/pkg/logger"
)

type UserRepository interface {
	// CreateUnique создает пользователя, если username и email свободны.
	// Возвращает false, если кто-то из них уже занят.
	CreateUnique(ctx context.Context, user *domain.User) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	Update(ctx context.Context, id string, mutate func(*domain.User) error) (*domain.User, error)
}

type userRepository struct {
	users *Collection[domain.User, *domain.User]
}

func NewUserRepository(backend Backend, log logger.Logger) UserRepository {
	return &userRepository{users: NewCollection[domain.User]("users", backend, log)}
}

func (r *userRepository) CreateUnique(ctx context.Context, user *domain.User) (bool, error) {
	email := normalizeEmail(user.Email)
	user.Email = email

	_, created, err := r.users.FindOrCreate(ctx, func(u *domain.User) bool {
		return u.Username == user.Username || normalizeEmail(u.Email) == email
	}, func() *domain.User {
		return user
	})
	return created, err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.users.FindByID(ctx, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	return r.users.FindOne(ctx, func(u *domain.User) bool {
		return normalizeEmail(u.Email) == email
	})
}

func (r *userRepository) List(ctx context.Context) ([]*domain.User, error) {
	return r.users.Find(ctx, nil)
}

func (r *userRepository) Update(ctx context.Context, id string, mutate func(*domain.User) error) (*domain.User, error) {
	return r.users.Update(ctx, id, mutate)
}

// Нормализация email (lowercase, trim)
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
