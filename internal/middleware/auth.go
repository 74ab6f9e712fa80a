package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"messenger/internal/service"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

const UserIDKey = "user_id"

type AuthMiddleware struct {
	authService service.AuthService
	log         logger.Logger
}

func NewAuthMiddleware(authService service.AuthService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		log:         log,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		userID, err := m.authService.VerifyToken(c.Request.Context(), parts[1])
		if err != nil {
			m.log.Debug("Token rejected", "error", err, "path", c.Request.URL.Path)
			c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": apperrors.PublicMessage(err)})
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID достает id пользователя, выставленный RequireAuth
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
