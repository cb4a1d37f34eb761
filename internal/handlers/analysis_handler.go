package handlers

import (
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"media-forensics-service/internal/models"
	"media-forensics-service/internal/orchestrator"
	"media-forensics-service/internal/services"
)

const (
	eventBuffer       = 64
	heartbeatInterval = 15 * time.Second
)

// AnalysisHandler handles media uploads and analysis state
type AnalysisHandler struct {
	service   *services.AnalysisService
	validate  *validator.Validate
	logger    *zap.Logger
	maxBytes  int64
	heartbeat time.Duration
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service *services.AnalysisService, maxBytes int64, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		service:   service,
		validate:  validator.New(),
		logger:    logger,
		maxBytes:  maxBytes,
		heartbeat: heartbeatInterval,
	}
}

// UploadMedia handles multipart uploads and starts the analyses
func (h *AnalysisHandler) UploadMedia(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.service.GetSession(sessionID); err != nil {
		writeError(c, err)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Failed to get file from form: " + err.Error(),
			Kind:  string(models.ErrorKindValidation),
		})
		return
	}
	if file.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Error: "File size exceeds limit",
			Kind:  string(models.ErrorKindValidation),
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to open file: " + err.Error(),
		})
		return
	}
	defer src.Close()

	snapshot, err := h.service.SubmitMedia(sessionID, file.Filename, src)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.AnalysisResponse{
		SessionID: sessionID,
		Analyzing: snapshot.Pending(),
		Snapshot:  *snapshot,
	})
}

// GetAnalysis returns the current per-kind state
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	session, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	snapshot := session.Snapshot()
	c.JSON(http.StatusOK, models.AnalysisResponse{
		SessionID: session.ID,
		Analyzing: snapshot.Pending(),
		Snapshot:  snapshot,
	})
}

// SetActiveKind changes the kind the assistant follows
func (h *AnalysisHandler) SetActiveKind(c *gin.Context) {
	var req models.SetActiveKindRequest
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

	kind, err := models.ParseDetectionKind(req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}

	session, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := session.SetActiveKind(kind); err != nil {
		writeError(c, err)
		return
	}

	snapshot := session.Snapshot()
	c.JSON(http.StatusOK, models.AnalysisResponse{
		SessionID: session.ID,
		Analyzing: snapshot.Pending(),
		Snapshot:  snapshot,
	})
}

// Events streams analysis events as server-sent events. The stream opens
// with a snapshot; a client that falls behind receives a fresh snapshot
// in place of the events it missed. An open stream keeps the session alive
// and ends when the session does.
func (h *AnalysisHandler) Events(c *gin.Context) {
	session, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	events := make(chan orchestrator.Event, eventBuffer)
	var resync atomic.Bool
	unsubscribe := session.Subscribe(orchestrator.ObserverFunc(func(e orchestrator.Event) {
		select {
		case events <- e:
		default:
			resync.Store(true)
		}
	}))
	defer unsubscribe()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", session.Snapshot())
	c.Writer.Flush()

	h.logger.Debug("Event stream opened", zap.String("session_id", session.ID))

	c.Stream(func(io.Writer) bool {
		if resync.CompareAndSwap(true, false) {
		drain:
			for {
				select {
				case <-events:
				default:
					break drain
				}
			}
			c.SSEvent("snapshot", session.Snapshot())
			return true
		}

		select {
		case <-c.Request.Context().Done():
			return false
		case <-session.Done():
			c.SSEvent("closed", gin.H{"session_id": session.ID})
			return false
		case e := <-events:
			session.Touch()
			c.SSEvent(string(e.Type), e)
			return true
		case <-heartbeat.C:
			session.Touch()
			c.SSEvent("ping", gin.H{"at": time.Now()})
			return true
		}
	})

	h.logger.Debug("Event stream closed", zap.String("session_id", session.ID))
}
