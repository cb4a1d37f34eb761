package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"media-forensics-service/internal/models"
	"media-forensics-service/internal/services"
)

// DetectorHandler lists the configured detectors
type DetectorHandler struct {
	service *services.AnalysisService
}

// NewDetectorHandler creates a new detector handler
func NewDetectorHandler(service *services.AnalysisService) *DetectorHandler {
	return &DetectorHandler{
		service: service,
	}
}

// GetDetectors returns the configured detectors
func (h *DetectorHandler) GetDetectors(c *gin.Context) {
	c.JSON(http.StatusOK, models.DetectorListResponse{
		Detectors: h.service.GetDetectors(),
	})
}
