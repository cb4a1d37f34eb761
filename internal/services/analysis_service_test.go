package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/config"
	"media-forensics-service/internal/models"
	"media-forensics-service/internal/storage"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	mp4Header = append([]byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"), make([]byte, 64)...)
)

type fakeDetector struct {
	kind   models.DetectionKind
	result models.Result
	err    error
}

func (d *fakeDetector) Kind() models.DetectionKind { return d.kind }

func (d *fakeDetector) Analyze(context.Context, models.UploadedMedia) (models.Result, error) {
	return d.result, d.err
}

func (d *fakeDetector) Describe() models.DetectorInfo {
	return models.DetectorInfo{Kind: d.kind, Provider: "fake"}
}

type fakeChat struct{}

func (fakeChat) Name() string { return "fake" }

func (fakeChat) Reply(_ context.Context, history []models.Turn) (string, error) {
	return "reply to " + history[len(history)-1].Text, nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxFileSizeMB:   1,
		SessionIdleTTL:  time.Minute,
		JanitorInterval: time.Hour,
		Chat:            config.ChatConfig{Timeout: time.Second},
	}
}

func newTestService(t *testing.T, detectors ...Detector) (*AnalysisService, *storage.TempStore) {
	t.Helper()
	store, err := storage.NewTempStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewTempStore failed: %v", err)
	}
	if len(detectors) == 0 {
		detectors = []Detector{
			&fakeDetector{kind: models.KindDeepfake, result: &models.DeepfakeResult{Score: 0.87}},
			&fakeDetector{kind: models.KindAIGenerated, err: models.NewProviderError("fake", 500, "down")},
			&fakeDetector{kind: models.KindExplicitContent, result: &models.ExplicitContentResult{NSFWLikelihood: models.LikelihoodSafe}},
		}
	}
	service := NewAnalysisService(testConfig(), detectors, fakeChat{}, store, NewMetrics(), zap.NewNop())
	t.Cleanup(func() { service.Close() })
	return service, store
}

func TestSubmitImage(t *testing.T) {
	service, _ := newTestService(t)
	session := service.CreateSession()

	snap, err := service.SubmitMedia(session.ID, "../photo.png", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("SubmitMedia failed: %v", err)
	}
	if snap.Media == nil || snap.Media.Category != models.MediaImage || snap.Media.Filename != "photo.png" {
		t.Fatalf("unexpected media: %+v", snap.Media)
	}
	if snap.Runs[models.KindExplicitContent].Status != models.StatusNotApplicable {
		t.Errorf("explicit content must not apply to images")
	}

	session.orch.Wait()
	final := session.Snapshot()
	if final.Runs[models.KindDeepfake].Status != models.StatusSucceeded {
		t.Errorf("expected deepfake succeeded, got %s", final.Runs[models.KindDeepfake].Status)
	}
	if final.Runs[models.KindAIGenerated].Status != models.StatusFailed {
		t.Errorf("expected ai_generated failed, got %s", final.Runs[models.KindAIGenerated].Status)
	}

	waitFor(t, func() bool {
		stats := service.GetStats()
		return stats.Kinds[models.KindDeepfake].Succeeded == 1 && stats.Kinds[models.KindAIGenerated].Failed == 1
	})
	if stats := service.GetStats(); stats.MediaAnalyzed != 1 || stats.ActiveSessions != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	waitFor(t, func() bool { return len(session.Turns()) == 2 })
	turns := session.Turns()
	if !strings.Contains(turns[0].Text, "deepfake detection results") {
		t.Errorf("expected seeded digest, got %q", turns[0].Text)
	}
}

func TestSubmitVideo(t *testing.T) {
	service, _ := newTestService(t)
	session := service.CreateSession()

	snap, err := service.SubmitMedia(session.ID, "clip.mp4", bytes.NewReader(mp4Header))
	if err != nil {
		t.Fatalf("SubmitMedia failed: %v", err)
	}
	if snap.Media.Category != models.MediaVideo || snap.ActiveKind != models.KindExplicitContent {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestSubmitRejectsInvalidMedia(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "text file", data: []byte("just some notes"), want: ErrUnsupportedMedia},
		{name: "too large", data: bytes.Repeat([]byte{0}, 1024*1024+1), want: storage.ErrTooLarge},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			service, store := newTestService(t)
			session := service.CreateSession()

			_, err := service.SubmitMedia(session.ID, "upload", bytes.NewReader(test.data))
			if !errors.Is(err, test.want) || !errors.Is(err, models.ErrValidation) {
				t.Fatalf("expected %v validation error, got %v", test.want, err)
			}

			entries, _ := os.ReadDir(store.Dir())
			if len(entries) != 0 {
				t.Errorf("rejected upload left %d files", len(entries))
			}
			if session.Snapshot().Media != nil {
				t.Error("rejected upload reached the orchestrator")
			}
		})
	}
}

func TestUnknownSession(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.GetSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := service.SubmitMedia("missing", "a.png", bytes.NewReader(pngHeader)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := service.EndSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestEndSessionReleasesMedia(t *testing.T) {
	service, store := newTestService(t)
	session := service.CreateSession()

	if _, err := service.SubmitMedia(session.ID, "photo.png", bytes.NewReader(pngHeader)); err != nil {
		t.Fatalf("SubmitMedia failed: %v", err)
	}
	if err := service.EndSession(session.ID); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 0 {
		t.Errorf("expected media removed, found %d files", len(entries))
	}
	if _, err := service.GetSession(session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ended session to be gone, got %v", err)
	}
}

func TestExpireIdleSessions(t *testing.T) {
	service, _ := newTestService(t)
	idle := service.CreateSession()
	busy := service.CreateSession()

	idle.mu.Lock()
	idle.lastSeen = time.Now().Add(-2 * time.Minute)
	idle.mu.Unlock()

	if n := service.expireIdle(time.Now()); n != 1 {
		t.Fatalf("expected 1 expired session, got %d", n)
	}
	if _, err := service.GetSession(idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected idle session expired, got %v", err)
	}
	if _, err := service.GetSession(busy.ID); err != nil {
		t.Errorf("busy session expired: %v", err)
	}
}

func TestIsReady(t *testing.T) {
	service, _ := newTestService(t)
	if !service.IsReady() {
		t.Error("expected service with all detectors to be ready")
	}
	if len(service.GetDetectors()) != 3 {
		t.Errorf("expected 3 detectors, got %d", len(service.GetDetectors()))
	}

	partial, _ := newTestService(t, &fakeDetector{kind: models.KindDeepfake})
	if partial.IsReady() {
		t.Error("expected service without all detectors not to be ready")
	}
}

func TestCloseEndsAllSessions(t *testing.T) {
	service, _ := newTestService(t)
	service.CreateSession()
	service.CreateSession()

	if err := service.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if stats := service.GetStats(); stats.ActiveSessions != 0 {
		t.Errorf("expected no sessions after Close, got %d", stats.ActiveSessions)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMetricsCountRuns(t *testing.T) {
	service, _ := newTestService(t)
	session := service.CreateSession()

	if _, err := service.SubmitMedia(session.ID, "photo.png", bytes.NewReader(pngHeader)); err != nil {
		t.Fatalf("SubmitMedia failed: %v", err)
	}
	session.orch.Wait()

	counted := func() float64 {
		families, err := service.metrics.Registry().Gather()
		if err != nil {
			t.Fatalf("Gather failed: %v", err)
		}
		var total float64
		for _, mf := range families {
			if mf.GetName() != "detection_runs_total" {
				continue
			}
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
		return total
	}
	waitFor(t, func() bool { return counted() == 2 })
}
