package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

type fakeConversation struct {
	mu    sync.Mutex
	seeds []string
}

func (c *fakeConversation) SeedIfEmpty(_ context.Context, text string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.seeds) > 0 {
		return false, nil
	}
	c.seeds = append(c.seeds, text)
	return true, nil
}

func succeeded(gen uint64, kind, active models.DetectionKind, result models.Result) Event {
	return Event{
		Type:       EventTransition,
		Generation: gen,
		Kind:       kind,
		Run:        models.DetectionRun{Kind: kind, Status: models.StatusSucceeded, Result: result},
		ActiveKind: active,
	}
}

func TestSeederSeedsActiveKindOnce(t *testing.T) {
	conv := &fakeConversation{}
	seeder := NewSeeder(context.Background(), conv, time.Second, zap.NewNop())

	ai := &models.AIGeneratedResult{Prediction: models.PredictionAI, Confidence: 0.934}
	df := &models.DeepfakeResult{Score: 0.87, Artifacts: 0.8, Inconsistencies: 0.7, Unnatural: 0.9}

	seeder.Notify(succeeded(1, models.KindAIGenerated, models.KindDeepfake, ai))
	seeder.Wait()
	if len(conv.seeds) != 0 {
		t.Fatalf("non-active kind must not seed, got %v", conv.seeds)
	}

	seeder.Notify(succeeded(1, models.KindDeepfake, models.KindDeepfake, df))
	seeder.Notify(succeeded(1, models.KindDeepfake, models.KindDeepfake, df))
	seeder.Wait()
	if len(conv.seeds) != 1 {
		t.Fatalf("expected one seed, got %d", len(conv.seeds))
	}
	if !strings.Contains(conv.seeds[0], "deepfake detection results") || !strings.Contains(conv.seeds[0], "Score: 0.87") {
		t.Errorf("unexpected digest: %q", conv.seeds[0])
	}
}

func TestSeederFollowsActiveKindSwitch(t *testing.T) {
	conv := &fakeConversation{}
	seeder := NewSeeder(context.Background(), conv, time.Second, zap.NewNop())

	ai := &models.AIGeneratedResult{Prediction: models.PredictionAI, Confidence: 0.934}
	e := succeeded(3, models.KindAIGenerated, models.KindAIGenerated, ai)
	e.Type = EventActiveKind
	seeder.Notify(e)
	seeder.Wait()

	if len(conv.seeds) != 1 || !strings.Contains(conv.seeds[0], "Confidence: 93%") {
		t.Errorf("unexpected seeds: %v", conv.seeds)
	}
}

func TestSeederIgnoresOlderGenerations(t *testing.T) {
	conv := &fakeConversation{}
	seeder := NewSeeder(context.Background(), conv, time.Second, zap.NewNop())

	seeder.mu.Lock()
	seeder.generation = 5
	seeder.mu.Unlock()

	seeder.Notify(succeeded(4, models.KindDeepfake, models.KindDeepfake, &models.DeepfakeResult{Score: 0.1}))
	seeder.Wait()
	if len(conv.seeds) != 0 {
		t.Errorf("stale generation seeded: %v", conv.seeds)
	}
}

func TestSeederWithOrchestrator(t *testing.T) {
	conv := &fakeConversation{}
	seeder := NewSeeder(context.Background(), conv, time.Second, zap.NewNop())

	o := New([]Detector{deepfakeOK(0.42), aiOK()}, zap.NewNop())
	o.Subscribe(seeder)

	if _, err := o.Select(image("img")); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	o.Wait()
	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	seeder.Wait()

	if len(conv.seeds) != 1 || !strings.Contains(conv.seeds[0], "Score: 0.42") {
		t.Errorf("expected deepfake digest, got %v", conv.seeds)
	}
}

func TestDigest(t *testing.T) {
	tests := []struct {
		name   string
		result models.Result
		want   string
	}{
		{
			name:   "ai generated",
			result: &models.AIGeneratedResult{Prediction: models.PredictionHuman, Confidence: 0.456},
			want:   "Prediction: human, Confidence: 46%.",
		},
		{
			name:   "explicit content",
			result: &models.ExplicitContentResult{Score: 0.88, Confidence: 0.81, NSFWLikelihood: models.LikelihoodExplicit},
			want:   "Likelihood: explicit, Score: 88%, Confidence: 81%.",
		},
		{
			name:   "deepfake",
			result: &models.DeepfakeResult{Score: 0.5, Artifacts: 0.45, Inconsistencies: 0.4, Unnatural: 0.55},
			want:   "Unnatural elements: 0.55.",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Digest(test.result)
			if !strings.Contains(got, test.want) || !strings.HasSuffix(got, digestQuestion) {
				t.Errorf("unexpected digest %q", got)
			}
		})
	}

	if Digest(nil) != "" {
		t.Error("expected empty digest for nil result")
	}
}
