package service

import (
	"context"
	"time"

	"messenger/internal/config"
	"messenger/internal/repository"
	"messenger/pkg/logger"
)

type RateLimitService interface {
	// Allow учитывает запрос и возвращает, уложился ли он в лимит, и сколько осталось
	Allow(ctx context.Context, key string) (bool, int, error)
	Limit() int
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	limit         int
	window        time.Duration
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, cfg config.RateLimitConfig, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		limit:         cfg.Requests,
		window:        cfg.Window,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string) (bool, int, error) {
	// Без Redis лимит не применяется
	if s.rateLimitRepo == nil || s.limit <= 0 {
		return true, s.limit, nil
	}

	allowed, err := s.rateLimitRepo.CheckLimit(ctx, key, s.limit)
	if err != nil {
		return false, 0, err
	}
	if !allowed {
		return false, 0, nil
	}

	count, err := s.rateLimitRepo.Increment(ctx, key, s.window)
	if err != nil {
		s.log.Warn("Rate limit increment failed", "key", key, "error", err)
		return true, s.limit, nil
	}
	remaining := s.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, nil
}

func (s *rateLimitService) Limit() int {
	return s.limit
}
