package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"media-forensics-service/internal/models"
	"media-forensics-service/internal/services"
)

// ChatHandler exposes the assistant conversation of a session
type ChatHandler struct {
	service  *services.AnalysisService
	validate *validator.Validate
}

// NewChatHandler creates a new chat handler
func NewChatHandler(service *services.AnalysisService) *ChatHandler {
	return &ChatHandler{
		service:  service,
		validate: validator.New(),
	}
}

// GetConversation returns the conversation log
func (h *ChatHandler) GetConversation(c *gin.Context) {
	session, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ConversationResponse{Turns: session.Turns()})
}

// SendMessage appends a user message and returns the assistant reply
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Validation failed: " + err.Error(),
		})
		return
	}

	session, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	reply, err := session.Chat(c.Request.Context(), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ChatResponse{
		Reply: reply,
		Turns: session.Turns(),
	})
}

// ClearConversation drops every turn
func (h *ChatHandler) ClearConversation(c *gin.Context) {
	session, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	session.ClearChat()
	c.Status(http.StatusNoContent)
}
