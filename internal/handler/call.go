package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"messenger/internal/service"
)

type CallHandler struct {
	callService service.CallService
}

func NewCallHandler(callService service.CallService) *CallHandler {
	return &CallHandler{callService: callService}
}

func (h *CallHandler) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ice_servers": h.callService.ICEServers()})
}
