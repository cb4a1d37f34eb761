package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"media-forensics-service/internal/models"
	"media-forensics-service/internal/services"
)

// SessionHandler opens and closes analysis sessions
type SessionHandler struct {
	service *services.AnalysisService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service *services.AnalysisService) *SessionHandler {
	return &SessionHandler{
		service: service,
	}
}

// CreateSession opens a session
func (h *SessionHandler) CreateSession(c *gin.Context) {
	session := h.service.CreateSession()
	c.JSON(http.StatusCreated, models.CreateSessionResponse{SessionID: session.ID})
}

// EndSession closes a session and discards its media and conversation
func (h *SessionHandler) EndSession(c *gin.Context) {
	if err := h.service.EndSession(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
