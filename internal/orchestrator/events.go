package orchestrator

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

// EventType distinguishes run transitions from focus changes
type EventType string

const (
	EventTransition EventType = "transition"
	EventActiveKind EventType = "active_kind"
)

// Event is published for every state change of an orchestrator. For the
// reset events emitted when new media is selected, From is empty.
type Event struct {
	Type       EventType            `json:"type"`
	Generation uint64               `json:"generation"`
	MediaID    string               `json:"media_id"`
	Kind       models.DetectionKind `json:"kind"`
	From       models.RunStatus     `json:"from,omitempty"`
	Run        models.DetectionRun  `json:"run"`
	ActiveKind models.DetectionKind `json:"active_kind"`
	At         time.Time            `json:"at"`
}

// Observer receives events in the order they were applied. Notify runs on
// the dispatcher goroutine and must not block.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// dispatcher delivers queued events to observers from a single goroutine,
// so publishers never wait on observers and ordering is preserved
type dispatcher struct {
	logger *zap.Logger

	mu        sync.Mutex
	queue     []Event
	observers map[int]Observer
	nextID    int

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newDispatcher(logger *zap.Logger) *dispatcher {
	d := &dispatcher{
		logger:    logger,
		observers: make(map[int]Observer),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) subscribe(o Observer) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.observers[id] = o

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

func (d *dispatcher) publish(e Event) {
	d.mu.Lock()
	d.queue = append(d.queue, e)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// stop delivers whatever is queued and ends the dispatcher goroutine
func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.done) })
	<-d.stopped
}

func (d *dispatcher) run() {
	defer close(d.stopped)

	for {
		if d.flush() > 0 {
			continue
		}
		select {
		case <-d.wake:
		case <-d.done:
			d.flush()
			return
		}
	}
}

func (d *dispatcher) flush() int {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	ids := make([]int, 0, len(d.observers))
	for id := range d.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	observers := make([]Observer, 0, len(ids))
	for _, id := range ids {
		observers = append(observers, d.observers[id])
	}
	d.mu.Unlock()

	for _, e := range batch {
		for _, o := range observers {
			d.deliver(o, e)
		}
	}
	return len(batch)
}

func (d *dispatcher) deliver(o Observer, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("Observer panicked", zap.Any("error", rec), zap.String("kind", string(e.Kind)))
		}
	}()
	o.Notify(e)
}
