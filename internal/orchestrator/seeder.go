package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

// Conversation is the part of a conversation session the seeder feeds
type Conversation interface {
	SeedIfEmpty(ctx context.Context, text string) (bool, error)
}

type seedKey struct {
	generation uint64
	kind       models.DetectionKind
}

// Seeder opens the conversation with a digest of the first successful
// result of the active kind. Each generation and kind is offered at most
// once, and the conversation only takes it while it has no turns.
type Seeder struct {
	conv    Conversation
	logger  *zap.Logger
	ctx     context.Context
	timeout time.Duration

	mu         sync.Mutex
	generation uint64
	offered    map[seedKey]bool
	wg         sync.WaitGroup
}

// NewSeeder creates a seeder. Seeding calls are bound to ctx and timeout.
func NewSeeder(ctx context.Context, conv Conversation, timeout time.Duration, logger *zap.Logger) *Seeder {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Seeder{
		conv:    conv,
		logger:  logger,
		ctx:     ctx,
		timeout: timeout,
		offered: make(map[seedKey]bool),
	}
}

// Notify implements Observer
func (s *Seeder) Notify(e Event) {
	if e.Run.Status != models.StatusSucceeded || e.Run.Kind != e.ActiveKind {
		return
	}

	key := seedKey{generation: e.Generation, kind: e.Run.Kind}
	s.mu.Lock()
	if e.Generation > s.generation {
		s.generation = e.Generation
		s.offered = make(map[seedKey]bool)
	}
	if e.Generation < s.generation || s.offered[key] {
		s.mu.Unlock()
		return
	}
	s.offered[key] = true
	s.mu.Unlock()

	text := Digest(e.Run.Result)
	if text == "" {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		seeded, err := s.conv.SeedIfEmpty(ctx, text)
		if err != nil {
			s.logger.Warn("Failed to seed conversation",
				zap.String("kind", string(key.kind)),
				zap.Uint64("generation", key.generation),
				zap.Error(err),
			)
			return
		}
		if seeded {
			s.logger.Info("Conversation seeded",
				zap.String("kind", string(key.kind)),
				zap.Uint64("generation", key.generation),
			)
		}
	}()
}

// Wait blocks until in-flight seeding calls return
func (s *Seeder) Wait() {
	s.wg.Wait()
}
