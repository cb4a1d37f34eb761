package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"media-forensics-service/internal/services"
)

// Handlers bundles every HTTP handler of the service
type Handlers struct {
	Health   *HealthHandler
	Detector *DetectorHandler
	Session  *SessionHandler
	Analysis *AnalysisHandler
	Chat     *ChatHandler
	Stats    *StatsHandler
}

// New creates all handlers around one analysis service
func New(service *services.AnalysisService, maxUploadBytes int64, logger *zap.Logger) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(service),
		Detector: NewDetectorHandler(service),
		Session:  NewSessionHandler(service),
		Analysis: NewAnalysisHandler(service, maxUploadBytes, logger),
		Chat:     NewChatHandler(service),
		Stats:    NewStatsHandler(service),
	}
}

// RegisterPublic adds the health endpoints
func (h *Handlers) RegisterPublic(router gin.IRouter) {
	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)
}

// RegisterProtected adds the endpoints that need an API key
func (h *Handlers) RegisterProtected(router gin.IRouter) {
	router.GET("/detectors", h.Detector.GetDetectors)
	router.GET("/stats", h.Stats.GetStats)

	router.POST("/sessions", h.Session.CreateSession)
	sessions := router.Group("/sessions/:id")
	{
		sessions.DELETE("", h.Session.EndSession)

		sessions.POST("/media", h.Analysis.UploadMedia)
		sessions.GET("/analysis", h.Analysis.GetAnalysis)
		sessions.PUT("/active-kind", h.Analysis.SetActiveKind)
		sessions.GET("/events", h.Analysis.Events)

		sessions.GET("/chat", h.Chat.GetConversation)
		sessions.POST("/chat", h.Chat.SendMessage)
		sessions.DELETE("/chat", h.Chat.ClearConversation)
	}
}
