// Package orchestrator runs the applicable detectors for the current media
// and keeps a per-kind view of their progress.
//
// Every selection of new media starts a generation. Completions carry the
// generation they were started under and are dropped when it is no longer
// current, so a superseded run can never change what observers see.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

// ErrClosed is returned by operations on a closed orchestrator
var ErrClosed = errors.New("orchestrator closed")

// Detector is the part of a detection client the orchestrator needs
type Detector interface {
	Kind() models.DetectionKind
	Analyze(ctx context.Context, media models.UploadedMedia) (models.Result, error)
}

// Orchestrator owns the media, run states and observers of one session
type Orchestrator struct {
	detectors map[models.DetectionKind]Detector
	logger    *zap.Logger
	now       func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	generation uint64
	media      *models.UploadedMedia
	activeKind models.DetectionKind
	runs       map[models.DetectionKind]models.DetectionRun
	cancel     context.CancelFunc
	closed     bool

	inflight  sync.WaitGroup
	discarded atomic.Int64
	events    *dispatcher
}

// New creates an orchestrator for the given detectors
func New(detectors []Detector, logger *zap.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		detectors:  make(map[models.DetectionKind]Detector, len(detectors)),
		logger:     logger,
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
		runs:       make(map[models.DetectionKind]models.DetectionRun, len(models.AllKinds)),
		events:     newDispatcher(logger),
	}
	for _, d := range detectors {
		o.detectors[d.Kind()] = d
	}
	for _, kind := range models.AllKinds {
		o.runs[kind] = models.DetectionRun{Kind: kind, Status: models.StatusNotApplicable}
	}
	return o
}

// Subscribe registers an observer and returns a function that removes it
func (o *Orchestrator) Subscribe(obs Observer) func() {
	return o.events.subscribe(obs)
}

// Select makes media the current media. Previous runs are abandoned and the
// previous media is released. Applicable kinds start concurrently; each one
// moves through pending, running and a terminal state on its own.
func (o *Orchestrator) Select(media models.UploadedMedia) (uint64, error) {
	applicable := models.ApplicableKinds(media.Category)
	if len(applicable) == 0 {
		return 0, models.NewValidationError("unsupported media category %q", media.Category)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, ErrClosed
	}

	o.generation++
	gen := o.generation
	prevCancel, prevMedia := o.cancel, o.media

	ctx, cancel := context.WithCancel(o.baseCtx)
	o.cancel = cancel
	o.media = &media
	o.activeKind = applicable[0]

	now := o.now()
	for _, kind := range models.AllKinds {
		run := models.DetectionRun{Kind: kind, Status: models.StatusNotApplicable}
		if lo.Contains(applicable, kind) {
			run.Status = models.StatusPending
		}
		o.runs[kind] = run
		o.publishLocked(EventTransition, kind, "", now)
	}
	o.publishLocked(EventActiveKind, o.activeKind, "", now)

	for _, kind := range applicable {
		o.inflight.Add(1)
		go o.run(ctx, gen, kind, media)
	}
	o.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevMedia != nil {
		if err := prevMedia.Release(); err != nil {
			o.logger.Warn("Failed to release superseded media", zap.String("media_id", prevMedia.ID), zap.Error(err))
		}
	}

	o.logger.Info("Media selected",
		zap.String("media_id", media.ID),
		zap.String("category", string(media.Category)),
		zap.Uint64("generation", gen),
		zap.Strings("kinds", lo.Map(applicable, func(k models.DetectionKind, _ int) string { return string(k) })),
	)
	return gen, nil
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, kind models.DetectionKind, media models.UploadedMedia) {
	defer o.inflight.Done()

	started := o.now()
	if !o.apply(gen, kind, func(r *models.DetectionRun) {
		r.Status = models.StatusRunning
		r.StartedAt = &started
	}) {
		return
	}

	result, err := o.analyze(ctx, kind, media)
	finished := o.now()

	applied := o.apply(gen, kind, func(r *models.DetectionRun) {
		r.FinishedAt = &finished
		r.Elapsed = finished.Sub(started)
		if err != nil {
			r.Status = models.StatusFailed
			r.Error = err.Error()
			r.ErrorKind = models.KindOf(err)
			return
		}
		r.Status = models.StatusSucceeded
		r.Result = result
		r.Verdict = result.Verdict()
	})
	if !applied {
		return
	}

	if err != nil {
		o.logger.Warn("Detection failed",
			zap.String("kind", string(kind)),
			zap.String("media_id", media.ID),
			zap.Duration("elapsed", finished.Sub(started)),
			zap.Error(err),
		)
		return
	}
	o.logger.Info("Detection succeeded",
		zap.String("kind", string(kind)),
		zap.String("media_id", media.ID),
		zap.String("verdict", result.Verdict()),
		zap.Duration("elapsed", finished.Sub(started)),
	)
}

// analyze calls the detector and turns every outcome, panics included,
// into a result or a tagged error
func (o *Orchestrator) analyze(ctx context.Context, kind models.DetectionKind, media models.UploadedMedia) (result models.Result, err error) {
	detector, ok := o.detectors[kind]
	if !ok {
		return nil, models.NewProviderError(string(kind), 0, "no detector configured")
	}

	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, models.NewProviderError(string(kind), 0, fmt.Sprintf("detector panicked: %v", rec))
		}
	}()

	result, err = detector.Analyze(ctx, media)
	if err == nil && result == nil {
		err = models.NewProviderError(string(kind), 0, "detector returned no result")
	}
	return result, err
}

// apply mutates one kind's run if gen is still current and publishes the
// transition. It returns false for stale generations.
func (o *Orchestrator) apply(gen uint64, kind models.DetectionKind, mutate func(*models.DetectionRun)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation {
		o.discarded.Add(1)
		o.logger.Debug("Discarding stale completion",
			zap.String("kind", string(kind)),
			zap.Uint64("generation", gen),
			zap.Uint64("current_generation", o.generation),
		)
		return false
	}

	run := o.runs[kind]
	from := run.Status
	mutate(&run)
	o.runs[kind] = run
	o.publishLocked(EventTransition, kind, from, o.now())
	return true
}

func (o *Orchestrator) publishLocked(typ EventType, kind models.DetectionKind, from models.RunStatus, at time.Time) {
	e := Event{
		Type:       typ,
		Generation: o.generation,
		Kind:       kind,
		From:       from,
		Run:        o.runs[kind],
		ActiveKind: o.activeKind,
		At:         at,
	}
	if o.media != nil {
		e.MediaID = o.media.ID
	}
	o.events.publish(e)
}

// SetActiveKind changes the kind the assistant follows. Only kinds that
// apply to the current media can be focused.
func (o *Orchestrator) SetActiveKind(kind models.DetectionKind) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.media == nil {
		return models.NewValidationError("no media selected")
	}
	if !kind.AppliesTo(o.media.Category) {
		return models.NewValidationError("%s detection does not apply to %s media", kind, o.media.Category)
	}
	if o.activeKind == kind {
		return nil
	}

	o.activeKind = kind
	o.publishLocked(EventActiveKind, kind, "", o.now())
	return nil
}

// Snapshot returns a consistent copy of the current state
func (o *Orchestrator) Snapshot() models.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := models.Snapshot{
		Generation: o.generation,
		ActiveKind: o.activeKind,
		Runs:       make(map[models.DetectionKind]models.DetectionRun, len(o.runs)),
	}
	if o.media != nil {
		info := o.media.Info()
		snap.Media = &info
	}
	for kind, run := range o.runs {
		snap.Runs[kind] = run
	}
	return snap
}

// Discarded returns how many completions were dropped as stale
func (o *Orchestrator) Discarded() int64 {
	return o.discarded.Load()
}

// Wait blocks until every started run has returned
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// Close abandons current runs, releases the media and stops event delivery
// after the queued events have been handed out.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.generation++
	media := o.media
	o.media = nil
	o.mu.Unlock()

	o.baseCancel()
	o.inflight.Wait()
	o.events.stop()

	if media != nil {
		if err := media.Release(); err != nil {
			return fmt.Errorf("failed to release media %s: %w", media.ID, err)
		}
	}
	return nil
}
