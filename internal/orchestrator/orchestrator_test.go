package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

type fakeDetector struct {
	kind    models.DetectionKind
	analyze func(ctx context.Context, media models.UploadedMedia) (models.Result, error)
}

func (d *fakeDetector) Kind() models.DetectionKind { return d.kind }

func (d *fakeDetector) Analyze(ctx context.Context, media models.UploadedMedia) (models.Result, error) {
	return d.analyze(ctx, media)
}

type trackedContent struct {
	released atomic.Int32
}

func (c *trackedContent) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("media")), nil
}

func (c *trackedContent) Release() error {
	c.released.Add(1)
	return nil
}

func deepfakeOK(score float64) *fakeDetector {
	return &fakeDetector{kind: models.KindDeepfake, analyze: func(context.Context, models.UploadedMedia) (models.Result, error) {
		return &models.DeepfakeResult{Score: score}, nil
	}}
}

func aiOK() *fakeDetector {
	return &fakeDetector{kind: models.KindAIGenerated, analyze: func(context.Context, models.UploadedMedia) (models.Result, error) {
		return &models.AIGeneratedResult{Prediction: models.PredictionHuman, Confidence: 0.8}, nil
	}}
}

func explicitOK() *fakeDetector {
	return &fakeDetector{kind: models.KindExplicitContent, analyze: func(context.Context, models.UploadedMedia) (models.Result, error) {
		return &models.ExplicitContentResult{Score: 0.1, NSFWLikelihood: models.LikelihoodSafe}, nil
	}}
}

func image(id string) models.UploadedMedia {
	return models.UploadedMedia{ID: id, Filename: id + ".png", MIMEType: "image/png", Category: models.MediaImage, Content: &trackedContent{}}
}

func video(id string) models.UploadedMedia {
	return models.UploadedMedia{ID: id, Filename: id + ".mp4", MIMEType: "video/mp4", Category: models.MediaVideo, Content: &trackedContent{}}
}

func newTestOrchestrator(t *testing.T, detectors ...Detector) *Orchestrator {
	t.Helper()
	o := New(detectors, zap.NewNop())
	t.Cleanup(func() { o.Close() })
	return o
}

func TestSelectStartsApplicableKinds(t *testing.T) {
	tests := []struct {
		name   string
		media  models.UploadedMedia
		want   map[models.DetectionKind]models.RunStatus
		active models.DetectionKind
	}{
		{
			name:  "image",
			media: image("img"),
			want: map[models.DetectionKind]models.RunStatus{
				models.KindDeepfake:        models.StatusSucceeded,
				models.KindAIGenerated:     models.StatusSucceeded,
				models.KindExplicitContent: models.StatusNotApplicable,
			},
			active: models.KindDeepfake,
		},
		{
			name:  "video",
			media: video("vid"),
			want: map[models.DetectionKind]models.RunStatus{
				models.KindDeepfake:        models.StatusNotApplicable,
				models.KindAIGenerated:     models.StatusNotApplicable,
				models.KindExplicitContent: models.StatusSucceeded,
			},
			active: models.KindExplicitContent,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var calls sync.Map
			count := func(d *fakeDetector) *fakeDetector {
				inner := d.analyze
				d.analyze = func(ctx context.Context, m models.UploadedMedia) (models.Result, error) {
					calls.Store(d.kind, true)
					return inner(ctx, m)
				}
				return d
			}

			o := newTestOrchestrator(t, count(deepfakeOK(0.5)), count(aiOK()), count(explicitOK()))
			if _, err := o.Select(test.media); err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			o.Wait()

			snap := o.Snapshot()
			for kind, want := range test.want {
				if got := snap.Runs[kind].Status; got != want {
					t.Errorf("%s: expected %s, got %s", kind, want, got)
				}
				_, called := calls.Load(kind)
				if called != (want != models.StatusNotApplicable) {
					t.Errorf("%s: called=%v with status %s", kind, called, want)
				}
			}
			if snap.ActiveKind != test.active {
				t.Errorf("expected active kind %s, got %s", test.active, snap.ActiveKind)
			}
			if snap.Pending() {
				t.Error("expected no pending runs")
			}
			if snap.Media == nil || snap.Media.ID != test.media.ID {
				t.Errorf("unexpected media in snapshot: %+v", snap.Media)
			}
		})
	}
}

func TestFailureIsIsolatedPerKind(t *testing.T) {
	failing := &fakeDetector{kind: models.KindDeepfake, analyze: func(context.Context, models.UploadedMedia) (models.Result, error) {
		return nil, models.NewNetworkError("sightengine", errors.New("connection refused"))
	}}
	o := newTestOrchestrator(t, failing, aiOK())

	if _, err := o.Select(image("img")); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	df := snap.Runs[models.KindDeepfake]
	if df.Status != models.StatusFailed || df.ErrorKind != models.ErrorKindNetwork || df.Error == "" {
		t.Errorf("unexpected deepfake run: %+v", df)
	}
	if df.Result != nil {
		t.Error("failed run must not carry a result")
	}
	ai := snap.Runs[models.KindAIGenerated]
	if ai.Status != models.StatusSucceeded || ai.Verdict != "human" {
		t.Errorf("unexpected ai run: %+v", ai)
	}
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	detector := &fakeDetector{kind: models.KindExplicitContent, analyze: func(ctx context.Context, m models.UploadedMedia) (models.Result, error) {
		if m.ID == "a" {
			close(started)
			<-release
			return &models.ExplicitContentResult{Score: 0.95, NSFWLikelihood: models.LikelihoodExplicit}, nil
		}
		return &models.ExplicitContentResult{Score: 0.1, NSFWLikelihood: models.LikelihoodSafe}, nil
	}}
	o := newTestOrchestrator(t, detector)

	first := video("a")
	if _, err := o.Select(first); err != nil {
		t.Fatalf("Select a failed: %v", err)
	}
	<-started

	gen, err := o.Select(video("b"))
	if err != nil {
		t.Fatalf("Select b failed: %v", err)
	}
	close(release)
	o.Wait()

	snap := o.Snapshot()
	if snap.Generation != gen || snap.Media.ID != "b" {
		t.Fatalf("expected generation %d for b, got %d for %+v", gen, snap.Generation, snap.Media)
	}
	run := snap.Runs[models.KindExplicitContent]
	result, ok := run.Result.(*models.ExplicitContentResult)
	if !ok || result.Score != 0.1 {
		t.Errorf("expected b's result, got %+v", run.Result)
	}
	if o.Discarded() != 1 {
		t.Errorf("expected 1 discarded completion, got %d", o.Discarded())
	}
	if n := first.Content.(*trackedContent).released.Load(); n != 1 {
		t.Errorf("expected superseded media released once, got %d", n)
	}
}

func TestSelectCancelsPreviousGeneration(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	detector := &fakeDetector{kind: models.KindExplicitContent, analyze: func(ctx context.Context, m models.UploadedMedia) (models.Result, error) {
		if m.ID == "a" {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}
		return &models.ExplicitContentResult{NSFWLikelihood: models.LikelihoodSafe}, nil
	}}
	o := newTestOrchestrator(t, detector)

	if _, err := o.Select(video("a")); err != nil {
		t.Fatalf("Select a failed: %v", err)
	}
	<-started
	if _, err := o.Select(video("b")); err != nil {
		t.Fatalf("Select b failed: %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("previous generation was not cancelled")
	}
	o.Wait()

	if got := o.Snapshot().Runs[models.KindExplicitContent].Status; got != models.StatusSucceeded {
		t.Errorf("expected b to succeed, got %s", got)
	}
}

func TestObserversSeeOrderedTransitions(t *testing.T) {
	gate := make(chan struct{})
	slow := &fakeDetector{kind: models.KindDeepfake, analyze: func(context.Context, models.UploadedMedia) (models.Result, error) {
		<-gate
		return &models.DeepfakeResult{Score: 0.2}, nil
	}}
	o := New([]Detector{slow, aiOK()}, zap.NewNop())

	var mu sync.Mutex
	var events []Event
	aiDone := make(chan struct{})
	o.Subscribe(ObserverFunc(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		if e.Kind == models.KindAIGenerated && e.Run.Status == models.StatusSucceeded {
			close(aiDone)
		}
	}))

	if _, err := o.Select(image("img")); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	<-aiDone
	partial := o.Snapshot()
	if partial.Runs[models.KindDeepfake].Status.Terminal() {
		t.Errorf("expected deepfake still in progress, got %s", partial.Runs[models.KindDeepfake].Status)
	}
	if !partial.Pending() {
		t.Error("expected partial snapshot to be pending")
	}

	close(gate)
	o.Wait()
	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	seq := map[models.DetectionKind][]models.RunStatus{}
	for _, e := range events {
		if e.Generation != 1 {
			t.Errorf("unexpected generation %d", e.Generation)
		}
		if e.Type == EventTransition {
			seq[e.Kind] = append(seq[e.Kind], e.Run.Status)
		}
	}
	want := []models.RunStatus{models.StatusPending, models.StatusRunning, models.StatusSucceeded}
	for _, kind := range []models.DetectionKind{models.KindDeepfake, models.KindAIGenerated} {
		if !equalStatuses(seq[kind], want) {
			t.Errorf("%s: expected %v, got %v", kind, want, seq[kind])
		}
	}
	if !equalStatuses(seq[models.KindExplicitContent], []models.RunStatus{models.StatusNotApplicable}) {
		t.Errorf("explicit_content: unexpected transitions %v", seq[models.KindExplicitContent])
	}
}

func equalStatuses(a, b []models.RunStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSetActiveKind(t *testing.T) {
	o := newTestOrchestrator(t, deepfakeOK(0.3), aiOK())

	if err := o.SetActiveKind(models.KindDeepfake); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error without media, got %v", err)
	}

	if _, err := o.Select(image("img")); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if err := o.SetActiveKind(models.KindExplicitContent); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for inapplicable kind, got %v", err)
	}
	if err := o.SetActiveKind(models.KindAIGenerated); err != nil {
		t.Fatalf("SetActiveKind failed: %v", err)
	}
	if got := o.Snapshot().ActiveKind; got != models.KindAIGenerated {
		t.Errorf("expected ai_generated active, got %s", got)
	}
}

func TestDetectorPanicBecomesFailure(t *testing.T) {
	panicking := &fakeDetector{kind: models.KindExplicitContent, analyze: func(context.Context, models.UploadedMedia) (models.Result, error) {
		panic("boom")
	}}
	o := newTestOrchestrator(t, panicking)

	if _, err := o.Select(video("vid")); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	o.Wait()

	run := o.Snapshot().Runs[models.KindExplicitContent]
	if run.Status != models.StatusFailed || run.ErrorKind != models.ErrorKindProvider {
		t.Errorf("unexpected run after panic: %+v", run)
	}
}

func TestMissingDetectorFailsRun(t *testing.T) {
	o := newTestOrchestrator(t, deepfakeOK(0.3))

	if _, err := o.Select(image("img")); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap.Runs[models.KindDeepfake].Status != models.StatusSucceeded {
		t.Errorf("expected deepfake to succeed, got %s", snap.Runs[models.KindDeepfake].Status)
	}
	if snap.Runs[models.KindAIGenerated].Status != models.StatusFailed {
		t.Errorf("expected ai_generated to fail, got %s", snap.Runs[models.KindAIGenerated].Status)
	}
}

func TestSelectRejectsUnknownCategory(t *testing.T) {
	o := newTestOrchestrator(t)

	_, err := o.Select(models.UploadedMedia{ID: "doc", Category: "document"})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCloseReleasesMedia(t *testing.T) {
	o := New([]Detector{explicitOK()}, zap.NewNop())
	media := video("vid")

	if _, err := o.Select(media); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n := media.Content.(*trackedContent).released.Load(); n != 1 {
		t.Errorf("expected media released once, got %d", n)
	}
	if _, err := o.Select(video("other")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
