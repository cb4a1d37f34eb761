package services

import (
	"context"
	"sync"
	"time"

	"media-forensics-service/internal/conversation"
	"media-forensics-service/internal/models"
	"media-forensics-service/internal/orchestrator"
)

// Session pairs the orchestrator and the assistant conversation of one
// client
type Session struct {
	ID string

	orch    *orchestrator.Orchestrator
	chat    *conversation.Session
	seeder  *orchestrator.Seeder
	metrics *Metrics
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch marks the session as in use so the idle janitor keeps it
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Done is closed once the session has been ended or expired
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Snapshot returns the current analysis state
func (s *Session) Snapshot() models.Snapshot {
	return s.orch.Snapshot()
}

// SetActiveKind focuses the assistant on one detection kind
func (s *Session) SetActiveKind(kind models.DetectionKind) error {
	return s.orch.SetActiveKind(kind)
}

// Subscribe streams analysis events to obs until the returned function is
// called
func (s *Session) Subscribe(obs orchestrator.Observer) func() {
	return s.orch.Subscribe(obs)
}

// Chat sends a user message to the assistant
func (s *Session) Chat(ctx context.Context, message string) (string, error) {
	reply, err := s.chat.AppendUserTurn(ctx, message)
	if s.metrics != nil {
		s.metrics.observeChat(err)
	}
	return reply, err
}

// Turns returns the conversation log
func (s *Session) Turns() []models.Turn {
	return s.chat.Turns()
}

// ClearChat empties the conversation
func (s *Session) ClearChat() {
	s.chat.Clear()
}

func (s *Session) close() error {
	s.cancel()
	err := s.orch.Close()
	s.seeder.Wait()
	return err
}
