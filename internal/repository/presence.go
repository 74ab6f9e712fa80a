package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"messenger/pkg/logger"
)

const presenceKeyPrefix = "presence:"

// PresenceCache дублирует онлайн-статус в Redis с TTL, чтобы флаг
// не залипал в true после падения процесса
type PresenceCache interface {
	SetOnline(ctx context.Context, userID string, ttl time.Duration) error
	SetOffline(ctx context.Context, userID string) error
	Online(ctx context.Context, userIDs []string) (map[string]bool, error)
}

type presenceCache struct {
	redis *redis.Client
	log   logger.Logger
}

func NewPresenceCache(redis *redis.Client, log logger.Logger) PresenceCache {
	return &presenceCache{redis: redis, log: log}
}

func (p *presenceCache) SetOnline(ctx context.Context, userID string, ttl time.Duration) error {
	if err := p.redis.Set(ctx, presenceKeyPrefix+userID, time.Now().Unix(), ttl).Err(); err != nil {
		p.log.Error("Failed to cache presence", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func (p *presenceCache) SetOffline(ctx context.Context, userID string) error {
	if err := p.redis.Del(ctx, presenceKeyPrefix+userID).Err(); err != nil {
		p.log.Error("Failed to clear presence", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func (p *presenceCache) Online(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	pipe := p.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, presenceKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.log.Error("Failed to read presence", "error", err)
		return nil, err
	}
	for i, id := range userIDs {
		out[id] = cmds[i].Val() > 0
	}
	return out, nil
}
