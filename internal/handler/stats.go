package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"messenger/internal/realtime"
)

type StatsSource interface {
	Stats() realtime.Stats
}

type StatsHandler struct {
	source StatsSource
}

func NewStatsHandler(source StatsSource) *StatsHandler {
	return &StatsHandler{source: source}
}

func (h *StatsHandler) Realtime(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.Stats())
}
