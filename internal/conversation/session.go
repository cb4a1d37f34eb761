// Package conversation keeps the assistant dialogue of an analysis session
// and talks to the chat provider behind it.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

// Provider produces the next assistant reply for a committed history whose
// last turn is the user's
type Provider interface {
	Name() string
	Reply(ctx context.Context, history []models.Turn) (string, error)
}

// Session is an append-only turn log. Exchanges are serialized; committed
// turns alternate user, assistant, starting with user.
type Session struct {
	provider Provider
	logger   *zap.Logger
	now      func() time.Time

	// one exchange at a time
	sem chan struct{}

	mu    sync.Mutex
	turns []models.Turn
	epoch uint64
}

// NewSession creates an empty session backed by provider
func NewSession(provider Provider, logger *zap.Logger) *Session {
	return &Session{
		provider: provider,
		logger:   logger.With(zap.String("chat_provider", provider.Name())),
		now:      time.Now,
		sem:      make(chan struct{}, 1),
	}
}

// AppendUserTurn records text as a user turn, asks the provider for a reply
// and records it. If the provider fails, the user turn stays visible marked
// as failed and the error is returned.
func (s *Session) AppendUserTurn(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", models.NewValidationError("message is empty")
	}

	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()

	return s.exchange(ctx, text)
}

// SeedIfEmpty sends text as the opening user turn when the session has no
// turns yet. It reports whether the seed was sent.
func (s *Session) SeedIfEmpty(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	if err := s.acquire(ctx); err != nil {
		return false, err
	}
	defer s.release()

	s.mu.Lock()
	empty := len(s.turns) == 0
	s.mu.Unlock()
	if !empty {
		return false, nil
	}

	_, err := s.exchange(ctx, text)
	return true, err
}

// Clear drops every turn. A reply still in flight is not recorded.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = nil
	s.epoch++
}

// Turns returns a copy of the log, failed turns included
func (s *Session) Turns() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]models.Turn, len(s.turns))
	copy(turns, s.turns)
	return turns
}

func (s *Session) exchange(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	if n := len(s.turns); n > 0 && s.turns[n-1].Failed {
		s.turns = s.turns[:n-1]
	}
	s.turns = append(s.turns, models.Turn{Speaker: models.SpeakerUser, Text: text, CreatedAt: s.now()})
	index := len(s.turns) - 1
	epoch := s.epoch
	history := make([]models.Turn, len(s.turns))
	copy(history, s.turns)
	s.mu.Unlock()

	startTime := time.Now()
	reply, err := s.provider.Reply(ctx, history)

	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		s.logger.Debug("Conversation cleared during exchange, reply not recorded")
		if err != nil {
			return "", err
		}
		return reply, nil
	}

	if err != nil {
		s.turns[index].Failed = true
		s.logger.Warn("Chat provider failed",
			zap.Int("turns", len(history)),
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Error(err),
		)
		return "", err
	}

	s.turns = append(s.turns, models.Turn{Speaker: models.SpeakerAssistant, Text: reply, CreatedAt: s.now()})
	s.logger.Debug("Chat reply recorded",
		zap.Int("turns", len(s.turns)),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return reply, nil
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return models.NewTimeoutError(s.provider.Name(), "waiting for previous message", ctx.Err())
	}
}

func (s *Session) release() {
	<-s.sem
}
