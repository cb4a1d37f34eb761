package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"media-forensics-service/internal/models"
	"media-forensics-service/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	service *services.AnalysisService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.AnalysisService) *HealthHandler {
	return &HealthHandler{
		service: service,
	}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready reports whether a detector is configured for every kind
func (h *HealthHandler) Ready(c *gin.Context) {
	resp := models.ReadyResponse{
		Status:    "ok",
		Detectors: len(h.service.GetDetectors()),
	}
	if !h.service.IsReady() {
		resp.Status = "degraded"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
