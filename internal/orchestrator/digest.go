package orchestrator

import (
	"fmt"
	"math"
	"strings"

	"media-forensics-service/internal/models"
)

const digestQuestion = "Can you explain what this means in simple terms?"

// Digest renders a result as the opening question for the assistant.
// It returns an empty string for result types it does not know.
func Digest(result models.Result) string {
	var b strings.Builder

	switch r := result.(type) {
	case *models.DeepfakeResult:
		fmt.Fprintf(&b, "I'm analyzing an image with the following deepfake detection results: ")
		fmt.Fprintf(&b, "Score: %.2f, Artifacts: %.2f, Inconsistencies: %.2f, Unnatural elements: %.2f. ",
			r.Score, r.Artifacts, r.Inconsistencies, r.Unnatural)
	case *models.AIGeneratedResult:
		fmt.Fprintf(&b, "I'm analyzing an image with the following AI generation detection results: ")
		fmt.Fprintf(&b, "Prediction: %s, Confidence: %d%%. ", r.Prediction, percent(r.Confidence))
	case *models.ExplicitContentResult:
		fmt.Fprintf(&b, "I'm analyzing a video with the following explicit content detection results: ")
		fmt.Fprintf(&b, "Likelihood: %s, Score: %d%%, Confidence: %d%%. ",
			r.NSFWLikelihood, percent(r.Score), percent(r.Confidence))
	default:
		return ""
	}

	b.WriteString(digestQuestion)
	return b.String()
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}
