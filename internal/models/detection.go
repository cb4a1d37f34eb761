package models

import (
	"time"
)

// DetectionKind identifies one of the independent analyses
type DetectionKind string

const (
	KindDeepfake        DetectionKind = "deepfake"
	KindAIGenerated     DetectionKind = "ai_generated"
	KindExplicitContent DetectionKind = "explicit_content"
)

// AllKinds lists every detection kind in display order
var AllKinds = []DetectionKind{KindDeepfake, KindAIGenerated, KindExplicitContent}

// ParseDetectionKind validates a kind received from a client
func ParseDetectionKind(s string) (DetectionKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", NewValidationError("unknown detection kind %q", s)
}

// ApplicableKinds returns the kinds that may run for a media category
func ApplicableKinds(category MediaCategory) []DetectionKind {
	switch category {
	case MediaImage:
		return []DetectionKind{KindDeepfake, KindAIGenerated}
	case MediaVideo:
		return []DetectionKind{KindExplicitContent}
	}
	return nil
}

// AppliesTo reports whether the kind runs for the category
func (k DetectionKind) AppliesTo(category MediaCategory) bool {
	for _, applicable := range ApplicableKinds(category) {
		if applicable == k {
			return true
		}
	}
	return false
}

// RunStatus is the lifecycle state of one detection run
type RunStatus string

const (
	StatusNotApplicable RunStatus = "not_applicable"
	StatusPending       RunStatus = "pending"
	StatusRunning       RunStatus = "running"
	StatusSucceeded     RunStatus = "succeeded"
	StatusFailed        RunStatus = "failed"
)

// Terminal reports whether no further transition can follow
func (s RunStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusNotApplicable
}

// Result is a kind-specific detection payload
type Result interface {
	Kind() DetectionKind
	Verdict() string
}

// Synthesized field names reported in result metadata
const (
	FieldArtifacts       = "artifacts"
	FieldInconsistencies = "inconsistencies"
	FieldUnnatural       = "unnatural"
	FieldHeatmap         = "heatmap"
	FieldConfidence      = "confidence"
)

// DeepfakeMetadata describes how a deepfake result was produced
type DeepfakeMetadata struct {
	Model             string   `json:"model"`
	Confidence        float64  `json:"confidence"`
	ProcessingSeconds float64  `json:"processing_time"`
	SynthesizedFields []string `json:"synthesized_fields"`
}

// DeepfakeResult represents the outcome of deepfake detection
type DeepfakeResult struct {
	Score           float64          `json:"score"`
	Artifacts       float64          `json:"artifacts"`
	Inconsistencies float64          `json:"inconsistencies"`
	Unnatural       float64          `json:"unnatural"`
	Heatmap         [][]float64      `json:"heatmap"`
	Metadata        DeepfakeMetadata `json:"metadata"`
}

func (r *DeepfakeResult) Kind() DetectionKind { return KindDeepfake }

// Verdict buckets the score the same way the result cards do
func (r *DeepfakeResult) Verdict() string {
	switch {
	case r.Score >= 0.8:
		return "deepfake"
	case r.Score >= 0.4:
		return "suspicious"
	default:
		return "authentic"
	}
}

// AIPrediction is the categorical answer of AI-generation detection
type AIPrediction string

const (
	PredictionAI           AIPrediction = "ai"
	PredictionHuman        AIPrediction = "human"
	PredictionInconclusive AIPrediction = "inconclusive"
)

// ProviderMetadata describes the provider call behind a result
type ProviderMetadata struct {
	Model             string   `json:"model"`
	ProcessingSeconds float64  `json:"processing_time"`
	SynthesizedFields []string `json:"synthesized_fields,omitempty"`
}

// AIGeneratedResult represents the outcome of AI-generation detection
type AIGeneratedResult struct {
	Prediction AIPrediction     `json:"prediction"`
	Confidence float64          `json:"confidence"`
	Metadata   ProviderMetadata `json:"metadata"`
}

func (r *AIGeneratedResult) Kind() DetectionKind { return KindAIGenerated }

func (r *AIGeneratedResult) Verdict() string {
	switch r.Prediction {
	case PredictionAI:
		if r.Confidence > 0.7 {
			return "ai_high_confidence"
		}
		return "ai_low_confidence"
	case PredictionHuman:
		return "human"
	default:
		return "inconclusive"
	}
}

// NSFWLikelihood is the dominant explicit-content category
type NSFWLikelihood string

const (
	LikelihoodSafe       NSFWLikelihood = "safe"
	LikelihoodSuggestive NSFWLikelihood = "suggestive"
	LikelihoodExplicit   NSFWLikelihood = "explicit"
	LikelihoodGore       NSFWLikelihood = "gore"
	LikelihoodViolence   NSFWLikelihood = "violence"
	LikelihoodUnknown    NSFWLikelihood = "unknown"
)

// ParseNSFWLikelihood maps a provider category onto the known set
func ParseNSFWLikelihood(category string) NSFWLikelihood {
	switch l := NSFWLikelihood(category); l {
	case LikelihoodSafe, LikelihoodSuggestive, LikelihoodExplicit, LikelihoodGore, LikelihoodViolence:
		return l
	}
	return LikelihoodUnknown
}

// ExplicitContentResult represents the outcome of explicit-content detection
type ExplicitContentResult struct {
	Score          float64            `json:"score"`
	Confidence     float64            `json:"confidence"`
	NSFWLikelihood NSFWLikelihood     `json:"nsfw_likelihood"`
	Categories     map[string]float64 `json:"categories,omitempty"`
	Metadata       ProviderMetadata   `json:"metadata"`
}

func (r *ExplicitContentResult) Kind() DetectionKind { return KindExplicitContent }

func (r *ExplicitContentResult) Verdict() string {
	switch r.NSFWLikelihood {
	case LikelihoodExplicit:
		return "explicit"
	case LikelihoodSuggestive, LikelihoodGore, LikelihoodViolence:
		return "unsafe"
	case LikelihoodUnknown:
		return "unknown"
	default:
		return "safe"
	}
}

// DetectionRun is one attempt to analyze one media with one kind.
// Result payloads are never mutated once stored, so copies of a run may
// share them.
type DetectionRun struct {
	Kind       DetectionKind `json:"kind"`
	Status     RunStatus     `json:"status"`
	Result     Result        `json:"result,omitempty"`
	Verdict    string        `json:"verdict,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns,omitempty"`
}

// Snapshot is a consistent view of an orchestrator at one instant
type Snapshot struct {
	Generation uint64                         `json:"generation"`
	Media      *MediaInfo                     `json:"media,omitempty"`
	ActiveKind DetectionKind                  `json:"active_kind,omitempty"`
	Runs       map[DetectionKind]DetectionRun `json:"runs"`
}

// Pending reports whether any run has yet to finish
func (s Snapshot) Pending() bool {
	for _, run := range s.Runs {
		if !run.Status.Terminal() {
			return true
		}
	}
	return false
}
