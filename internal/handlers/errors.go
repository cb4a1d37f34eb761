package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"media-forensics-service/internal/models"
	"media-forensics-service/internal/orchestrator"
	"media-forensics-service/internal/services"
	"media-forensics-service/internal/storage"
)

// statusFor maps service and detection errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, orchestrator.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrNetwork), errors.Is(err, models.ErrProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	resp := models.ErrorResponse{Error: err.Error()}
	var de *models.DetectionError
	if errors.As(err, &de) {
		resp.Kind = string(de.Kind)
	}
	c.JSON(statusFor(err), resp)
}
