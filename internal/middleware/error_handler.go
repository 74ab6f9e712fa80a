package middleware

import (
	"github.com/gin-gonic/gin"
	"messenger/pkg/errors"
	"messenger/pkg/logger"
)

// ErrorHandler отвечает по последней ошибке из c.Errors, если обработчик еще ничего не записал
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()

		statusCode := errors.HTTPStatusFromError(err.Err)
		if statusCode >= 500 {
			log.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err.Err)
		}
		if c.Writer.Written() {
			return
		}

		c.JSON(statusCode, gin.H{
			"error": errors.PublicMessage(err.Err),
		})
	}
}
