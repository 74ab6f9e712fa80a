package repository

import (
	"github.com/redis/go-redis/v9"
	"messenger/pkg/logger"
)

type Repositories struct {
	Backend   Backend
	User      UserRepository
	Chat      ChatRepository
	Message   MessageRepository
	RateLimit RateLimitRepository
	Presence  PresenceCache
}

// NewRepositories собирает репозитории поверх backend. Без Redis
// RateLimit и Presence остаются nil.
func NewRepositories(backend Backend, redis *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{
		Backend: backend,
		User:    NewUserRepository(backend, log),
		Chat:    NewChatRepository(backend, log),
		Message: NewMessageRepository(backend, log),
	}

	if redis != nil {
		repos.RateLimit = NewRateLimitRepository(redis, log)
		repos.Presence = NewPresenceCache(redis, log)
		log.Info("Redis repositories initialized")
	} else {
		log.Warn("Redis is not configured, rate limiting and presence cache disabled")
	}

	return repos
}
