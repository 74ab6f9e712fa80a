package handler

import (
	"github.com/gin-gonic/gin"
	"messenger/internal/config"
	"messenger/internal/middleware"
	"messenger/internal/realtime"
	"messenger/internal/service"
	"messenger/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	User      *UserHandler
	Chat      *ChatHandler
	Message   *MessageHandler
	Call      *CallHandler
	Stats     *StatsHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, hub *realtime.Hub, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(),
		Auth:      NewAuthHandler(services.Auth, services.User, log),
		User:      NewUserHandler(services.User, log),
		Chat:      NewChatHandler(services.Chat, services.Message, log),
		Message:   NewMessageHandler(services.Message, log),
		Call:      NewCallHandler(services.Call),
		Stats:     NewStatsHandler(hub),
		WebSocket: NewWebSocketHandler(services.Auth, hub, cfg.Server.AllowedOrigins, cfg.Realtime, log),
	}
}

// Register раскладывает маршруты по группам. /ws проверяет токен сам,
// потому что браузер не передает заголовок Authorization при апгрейде.
func (h *Handlers) Register(r *gin.Engine, auth *middleware.AuthMiddleware, rateLimit *middleware.RateLimitMiddleware) {
	r.GET("/health", h.Health.Check)
	r.GET("/ws", h.WebSocket.Handle)

	api := r.Group("/api/v1")
	api.Use(rateLimit.Limit())

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
	}

	protected := api.Group("")
	protected.Use(auth.RequireAuth())
	{
		protected.GET("/auth/me", h.Auth.Me)
		protected.PUT("/auth/profile", h.Auth.UpdateProfile)
		protected.POST("/auth/logout", h.Auth.Logout)

		protected.GET("/users", h.User.List)
		protected.GET("/users/:id", h.User.Get)

		protected.GET("/chats", h.Chat.List)
		protected.GET("/chats/:id", h.Chat.Get)
		protected.DELETE("/chats/:id", h.Chat.Delete)
		protected.GET("/chats/:id/messages", h.Chat.Messages)
		protected.POST("/chats/private", h.Chat.CreatePrivate)
		protected.POST("/chats/group", h.Chat.CreateGroup)
		protected.PUT("/chats/group/:id", h.Chat.UpdateGroup)
		protected.POST("/chats/group/:id/participants", h.Chat.AddParticipants)
		protected.DELETE("/chats/group/:id/participants/:userId", h.Chat.RemoveParticipant)
		protected.POST("/chats/group/:id/leave", h.Chat.Leave)

		protected.POST("/messages", h.Message.Send)
		protected.POST("/messages/:id/read", h.Message.MarkRead)

		protected.GET("/calls/ice-servers", h.Call.ICEServers)

		protected.GET("/stats/realtime", h.Stats.Realtime)
	}
}

// fail передает ошибку в middleware.ErrorHandler
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
