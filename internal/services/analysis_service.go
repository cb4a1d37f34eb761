package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"media-forensics-service/internal/config"
	"media-forensics-service/internal/conversation"
	"media-forensics-service/internal/models"
	"media-forensics-service/internal/orchestrator"
	"media-forensics-service/internal/storage"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnsupportedMedia marks uploads that are neither images nor videos
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// Detector is a detection client the service can run and describe
type Detector interface {
	orchestrator.Detector
	Describe() models.DetectorInfo
}

// AnalysisService owns the analysis sessions of the process
type AnalysisService struct {
	config    *config.Config
	logger    *zap.Logger
	detectors []Detector
	chat      conversation.Provider
	store     *storage.TempStore
	metrics   *Metrics

	sessions     map[string]*Session
	sessionMutex sync.RWMutex

	stats      *Stats
	statsMutex sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Stats keeps track of service statistics
type Stats struct {
	MediaAnalyzed int64
	Kinds         map[models.DetectionKind]*kindStats
}

type kindStats struct {
	succeeded           int64
	failed              int64
	totalProcessingTime time.Duration
}

// NewAnalysisService creates the service and starts the idle session janitor
func NewAnalysisService(cfg *config.Config, detectors []Detector, chat conversation.Provider, store *storage.TempStore, metrics *Metrics, logger *zap.Logger) *AnalysisService {
	s := &AnalysisService{
		config:    cfg,
		logger:    logger,
		detectors: detectors,
		chat:      chat,
		store:     store,
		metrics:   metrics,
		sessions:  make(map[string]*Session),
		stats:     &Stats{Kinds: make(map[models.DetectionKind]*kindStats)},
		done:      make(chan struct{}),
	}
	for _, kind := range models.AllKinds {
		s.stats.Kinds[kind] = &kindStats{}
	}

	s.wg.Add(1)
	go s.cleanupIdleSessions()

	return s
}

// GetDetectors describes the configured detectors
func (s *AnalysisService) GetDetectors() []models.DetectorInfo {
	return lo.Map(s.detectors, func(d Detector, _ int) models.DetectorInfo {
		return d.Describe()
	})
}

// IsReady reports whether every detection kind has a detector
func (s *AnalysisService) IsReady() bool {
	configured := lo.Map(s.detectors, func(d Detector, _ int) models.DetectionKind { return d.Kind() })
	return lo.Every(configured, models.AllKinds)
}

// CreateSession opens a new analysis session
func (s *AnalysisService) CreateSession() *Session {
	id := uuid.NewString()
	logger := s.logger.With(zap.String("session_id", id))

	orch := orchestrator.New(
		lo.Map(s.detectors, func(d Detector, _ int) orchestrator.Detector { return d }),
		logger,
	)
	chat := conversation.NewSession(s.chat, logger)

	ctx, cancel := context.WithCancel(context.Background())
	seeder := orchestrator.NewSeeder(ctx, chat, s.config.Chat.Timeout, logger)

	session := &Session{
		ID:       id,
		orch:     orch,
		chat:     chat,
		seeder:   seeder,
		metrics:  s.metrics,
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: time.Now(),
	}
	orch.Subscribe(seeder)
	orch.Subscribe(orchestrator.ObserverFunc(s.recordEvent))

	s.sessionMutex.Lock()
	s.sessions[id] = session
	s.sessionMutex.Unlock()

	if s.metrics != nil {
		s.metrics.activeSession.Inc()
	}
	logger.Info("Session created")
	return session
}

// GetSession returns a live session and marks it as used
func (s *AnalysisService) GetSession(id string) (*Session, error) {
	s.sessionMutex.RLock()
	session, ok := s.sessions[id]
	s.sessionMutex.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	session.Touch()
	return session, nil
}

// EndSession closes a session and releases its media
func (s *AnalysisService) EndSession(id string) error {
	s.sessionMutex.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.sessionMutex.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return s.closeSession(session)
}

func (s *AnalysisService) closeSession(session *Session) error {
	if s.metrics != nil {
		s.metrics.activeSession.Dec()
	}
	if err := session.close(); err != nil {
		return fmt.Errorf("failed to close session %s: %w", session.ID, err)
	}
	s.logger.Info("Session closed", zap.String("session_id", session.ID))
	return nil
}

// SubmitMedia stores an upload, checks its real content type and starts
// the applicable analyses in the session. The returned snapshot is taken
// right after the runs were started.
func (s *AnalysisService) SubmitMedia(sessionID, filename string, r io.Reader) (*models.Snapshot, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	mediaID := uuid.NewString()
	file, err := s.store.Save(mediaID, r, s.config.MaxFileSizeBytes())
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			s.reject("too_large")
			return nil, err
		}
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	mtype, err := mimetype.DetectFile(file.Path())
	if err != nil {
		s.release(file)
		return nil, fmt.Errorf("failed to detect media type: %w", err)
	}

	category, ok := models.CategoryFromMIME(mtype.String())
	if !ok {
		s.release(file)
		s.reject("unsupported_type")
		return nil, &models.DetectionError{
			Kind:    models.ErrorKindValidation,
			Message: fmt.Sprintf("%s is not an image or video", mtype.String()),
			Err:     ErrUnsupportedMedia,
		}
	}

	media := models.UploadedMedia{
		ID:       mediaID,
		Filename: filepath.Base(filename),
		MIMEType: mtype.String(),
		Category: category,
		Size:     file.Size(),
		Content:  file,
	}
	if _, err := session.orch.Select(media); err != nil {
		s.release(file)
		return nil, fmt.Errorf("failed to start analysis: %w", err)
	}

	s.statsMutex.Lock()
	s.stats.MediaAnalyzed++
	s.statsMutex.Unlock()
	if s.metrics != nil {
		s.metrics.observeUpload(category)
	}

	s.logger.Info("Media accepted",
		zap.String("session_id", sessionID),
		zap.String("media_id", mediaID),
		zap.String("mime_type", media.MIMEType),
		zap.Int64("size", media.Size),
	)

	snapshot := session.orch.Snapshot()
	return &snapshot, nil
}

func (s *AnalysisService) release(file *storage.TempFile) {
	if err := file.Release(); err != nil {
		s.logger.Warn("Failed to release upload", zap.String("path", file.Path()), zap.Error(err))
	}
}

func (s *AnalysisService) reject(reason string) {
	if s.metrics != nil {
		s.metrics.observeRejected(reason)
	}
}

// recordEvent folds terminal transitions into the statistics
func (s *AnalysisService) recordEvent(e orchestrator.Event) {
	if e.Type != orchestrator.EventTransition || e.From == "" {
		return
	}
	run := e.Run
	if run.Status != models.StatusSucceeded && run.Status != models.StatusFailed {
		return
	}

	s.statsMutex.Lock()
	ks := s.stats.Kinds[run.Kind]
	if run.Status == models.StatusSucceeded {
		ks.succeeded++
	} else {
		ks.failed++
	}
	ks.totalProcessingTime += run.Elapsed
	s.statsMutex.Unlock()

	if s.metrics != nil {
		s.metrics.observeRun(run)
	}
}

// GetStats returns service statistics
func (s *AnalysisService) GetStats() *models.StatsResponse {
	s.sessionMutex.RLock()
	active := int64(len(s.sessions))
	s.sessionMutex.RUnlock()

	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()

	kinds := make(map[models.DetectionKind]models.KindStats, len(s.stats.Kinds))
	for kind, ks := range s.stats.Kinds {
		var avgProcessingTime float64
		if total := ks.succeeded + ks.failed; total > 0 {
			avgProcessingTime = float64(ks.totalProcessingTime.Milliseconds()) / float64(total)
		}
		kinds[kind] = models.KindStats{
			Succeeded:         ks.succeeded,
			Failed:            ks.failed,
			AvgProcessingTime: avgProcessingTime,
		}
	}

	return &models.StatsResponse{
		ActiveSessions: active,
		MediaAnalyzed:  s.stats.MediaAnalyzed,
		Kinds:          kinds,
	}
}

// cleanupIdleSessions periodically closes sessions nobody has used within
// the idle TTL
func (s *AnalysisService) cleanupIdleSessions() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			if n := s.expireIdle(now); n > 0 {
				s.logger.Info("Expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *AnalysisService) expireIdle(now time.Time) int {
	cutoff := now.Add(-s.config.SessionIdleTTL)

	s.sessionMutex.Lock()
	var expired []*Session
	for id, session := range s.sessions {
		if session.idleSince().Before(cutoff) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	s.sessionMutex.Unlock()

	for _, session := range expired {
		if err := s.closeSession(session); err != nil {
			s.logger.Warn("Failed to close idle session", zap.Error(err))
		}
	}
	return len(expired)
}

// Close stops the janitor and closes every open session
func (s *AnalysisService) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()

	s.sessionMutex.Lock()
	sessions := lo.Values(s.sessions)
	s.sessions = make(map[string]*Session)
	s.sessionMutex.Unlock()

	var result *multierror.Error
	for _, session := range sessions {
		if err := s.closeSession(session); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
