package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"messenger/internal/middleware"
	"messenger/internal/service"
	"messenger/pkg/logger"
)

type MessageHandler struct {
	messageService service.MessageService
	log            logger.Logger
}

func NewMessageHandler(messageService service.MessageService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		log:            log,
	}
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	// Отправитель всегда владелец токена
	req.SenderID = middleware.UserID(c)

	message, err := h.messageService.Send(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	update, err := h.messageService.MarkRead(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "update": update})
}
