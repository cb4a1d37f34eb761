package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"media-forensics-service/internal/services"
)

// StatsHandler handles statistics requests
type StatsHandler struct {
	service *services.AnalysisService
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(service *services.AnalysisService) *StatsHandler {
	return &StatsHandler{
		service: service,
	}
}

// GetStats returns service statistics
func (h *StatsHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.GetStats())
}
