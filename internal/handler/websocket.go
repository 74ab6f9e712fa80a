package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"messenger/internal/config"
	"messenger/internal/middleware"
	"messenger/internal/service"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

// ClientServer принимает уже апгрейднутое соединение
type ClientServer interface {
	ServeClient(conn *websocket.Conn, userID string)
}

type WebSocketHandler struct {
	authService service.AuthService
	hub         ClientServer
	upgrader    websocket.Upgrader
	log         logger.Logger
}

func NewWebSocketHandler(authService service.AuthService, hub ClientServer, allowedOrigins []string, cfg config.RealtimeConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		authService: authService,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		log: log,
	}
}

// Handle проверяет токен до апгрейда: из query ?token= или из заголовка Authorization
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	userID, err := h.authService.VerifyToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": apperrors.PublicMessage(err)})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err, "user_id", userID)
		return
	}

	h.hub.ServeClient(conn, userID)
}
