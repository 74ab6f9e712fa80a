package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

// PresenceRefreshInterval - как часто realtime слой продлевает онлайн-статус
const (
	presenceTTL             = 2 * time.Minute
	PresenceRefreshInterval = presenceTTL / 2
)

type UserService interface {
	GetByID(ctx context.Context, id string) (*domain.UserView, error)
	// List возвращает всех пользователей, кроме exceptID
	List(ctx context.Context, exceptID string) ([]domain.UserView, error)
	UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.UserView, error)
	SetOnline(ctx context.Context, id string, online bool) error
	// TouchPresence продлевает TTL онлайн-статуса в Redis для подключенных пользователей
	TouchPresence(ctx context.Context, ids []string)
}

type userService struct {
	userRepo repository.UserRepository
	presence repository.PresenceCache
	blobs    BlobResolver
	log      logger.Logger
}

func NewUserService(userRepo repository.UserRepository, presence repository.PresenceCache, blobs BlobResolver, log logger.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		presence: presence,
		blobs:    blobs,
		log:      log,
	}
}

func (s *userService) GetByID(ctx context.Context, id string) (*domain.UserView, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}
	views := s.withPresence(ctx, []domain.UserView{userView(user, s.blobs)})
	return &views[0], nil
}

func (s *userService) List(ctx context.Context, exceptID string) ([]domain.UserView, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserView, 0, len(users))
	for _, u := range users {
		if u.ID == exceptID {
			continue
		}
		out = append(out, userView(u, s.blobs))
	}
	return s.withPresence(ctx, out), nil
}

func (s *userService) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.UserView, error) {
	user, err := s.userRepo.Update(ctx, id, func(u *domain.User) error {
		if update.DisplayName != nil {
			name := strings.TrimSpace(*update.DisplayName)
			if len(name) > 100 {
				return fmt.Errorf("%w: display name is too long (max 100 characters)", apperrors.ErrValidation)
			}
			u.DisplayName = name
		}
		if update.Phone != nil {
			u.Phone = strings.TrimSpace(*update.Phone)
		}
		if update.Bio != nil {
			u.Bio = *update.Bio
		}
		if update.Birthday != nil {
			u.Birthday = update.Birthday
		}
		if update.Avatar != nil {
			u.Avatar = *update.Avatar
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}
	v := userView(user, s.blobs)
	return &v, nil
}

func (s *userService) SetOnline(ctx context.Context, id string, online bool) error {
	user, err := s.userRepo.Update(ctx, id, func(u *domain.User) error {
		u.Online = online
		u.LastSeen = time.Now().UTC()
		return nil
	})
	if err != nil {
		s.log.Error("Failed to update online flag", "user_id", id, "error", err)
		return err
	}
	if user == nil {
		return apperrors.ErrUserNotFound
	}

	if s.presence != nil {
		if online {
			_ = s.presence.SetOnline(ctx, id, presenceTTL)
		} else {
			_ = s.presence.SetOffline(ctx, id)
		}
	}
	return nil
}

func (s *userService) TouchPresence(ctx context.Context, ids []string) {
	if s.presence == nil {
		return
	}
	for _, id := range ids {
		if err := s.presence.SetOnline(ctx, id, presenceTTL); err != nil {
			return
		}
	}
}

// withPresence берет онлайн-статус из Redis, если он доступен.
// При ошибке Redis остаются сохраненные флаги.
func (s *userService) withPresence(ctx context.Context, views []domain.UserView) []domain.UserView {
	if s.presence == nil || len(views) == 0 {
		return views
	}
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	online, err := s.presence.Online(ctx, ids)
	if err != nil {
		return views
	}
	for i := range views {
		views[i].Online = online[views[i].ID]
	}
	return views
}
