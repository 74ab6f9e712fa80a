package service

import (
	"messenger/internal/config"
	"messenger/internal/repository"
	"messenger/pkg/logger"
)

type Services struct {
	Auth      AuthService
	User      UserService
	Chat      ChatDirectory
	Message   MessageService
	Call      CallService
	RateLimit RateLimitService
	Blobs     BlobResolver
}

// NewServices собирает сервисы. broadcaster и peers приходят из realtime слоя.
func NewServices(repos *repository.Repositories, cfg *config.Config, broadcaster Broadcaster, peers PeerDirectory, log logger.Logger) *Services {
	blobs := NewBlobResolver(cfg.Blob.PublicBaseURL)
	locks := NewChatLocks()
	directory := NewChatDirectory(repos.Chat, repos.Message, repos.User, locks, blobs, log.With("component", "chat_directory"))

	return &Services{
		Auth:      NewAuthService(repos.User, blobs, cfg.JWT, log.With("component", "auth")),
		User:      NewUserService(repos.User, repos.Presence, blobs, log.With("component", "user")),
		Chat:      directory,
		Message:   NewMessageService(repos, directory, locks, broadcaster, blobs, cfg.Realtime.DeliveredDelay, log.With("component", "message")),
		Call:      NewCallService(peers, cfg.Realtime, cfg.WebRTC, log.With("component", "call")),
		RateLimit: NewRateLimitService(repos.RateLimit, cfg.RateLimit, log.With("component", "rate_limit")),
		Blobs:     blobs,
	}
}
