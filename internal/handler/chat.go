package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"messenger/internal/middleware"
	"messenger/internal/service"
	"messenger/pkg/logger"
)

type ChatHandler struct {
	directory      service.ChatDirectory
	messageService service.MessageService
	log            logger.Logger
}

func NewChatHandler(directory service.ChatDirectory, messageService service.MessageService, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		directory:      directory,
		messageService: messageService,
		log:            log,
	}
}

type CreatePrivateChatRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type CreateGroupRequest struct {
	Name         string   `json:"name" binding:"required"`
	Participants []string `json:"participants"`
}

type UpdateGroupRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

type AddParticipantsRequest struct {
	UserIDs []string `json:"user_ids" binding:"required"`
}

func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.directory.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (h *ChatHandler) Get(c *gin.Context) {
	chat, err := h.directory.Get(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h *ChatHandler) CreatePrivate(c *gin.Context) {
	var req CreatePrivateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	chat, err := h.directory.FindOrCreatePrivate(c.Request.Context(), middleware.UserID(c), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	h.respondView(c, http.StatusOK, chat.ID)
}

func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	chat, err := h.directory.CreateGroup(c.Request.Context(), middleware.UserID(c), req.Name, req.Participants)
	if err != nil {
		fail(c, err)
		return
	}
	h.respondView(c, http.StatusCreated, chat.ID)
}

func (h *ChatHandler) UpdateGroup(c *gin.Context) {
	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	chat, err := h.directory.UpdateGroup(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Name, req.Avatar)
	if err != nil {
		fail(c, err)
		return
	}
	h.respondView(c, http.StatusOK, chat.ID)
}

func (h *ChatHandler) AddParticipants(c *gin.Context) {
	var req AddParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	chat, err := h.directory.AddParticipants(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.UserIDs)
	if err != nil {
		fail(c, err)
		return
	}
	h.respondView(c, http.StatusOK, chat.ID)
}

func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	h.removeParticipant(c, c.Param("userId"))
}

func (h *ChatHandler) Leave(c *gin.Context) {
	h.removeParticipant(c, middleware.UserID(c))
}

func (h *ChatHandler) removeParticipant(c *gin.Context, userID string) {
	chatID := c.Param("id")
	deleted, err := h.directory.RemoveParticipant(c.Request.Context(), chatID, middleware.UserID(c), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chat_deleted": deleted})
}

func (h *ChatHandler) Delete(c *gin.Context) {
	if err := h.directory.DeleteChat(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ChatHandler) Messages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.messageService.History(c.Request.Context(), c.Param("id"), middleware.UserID(c), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// respondView отдает чат в развернутом виде: участники и последнее сообщение
func (h *ChatHandler) respondView(c *gin.Context, status int, chatID string) {
	view, err := h.directory.Get(c.Request.Context(), chatID, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, view)
}
