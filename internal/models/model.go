package models

// CreateSessionResponse represents the response for session creation
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// AnalysisResponse represents the current analysis state of a session
type AnalysisResponse struct {
	SessionID string   `json:"session_id"`
	Analyzing bool     `json:"analyzing"`
	Snapshot  Snapshot `json:"snapshot"`
}

// SetActiveKindRequest represents a change of the focused detection kind
type SetActiveKindRequest struct {
	Kind string `json:"kind" validate:"required,oneof=deepfake ai_generated explicit_content"`
}

// ChatRequest represents a user message for the assistant
type ChatRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

// ChatResponse represents the assistant reply and the resulting log
type ChatResponse struct {
	Reply string `json:"reply"`
	Turns []Turn `json:"turns"`
}

// ConversationResponse represents the conversation log
type ConversationResponse struct {
	Turns []Turn `json:"turns"`
}

// DetectorInfo describes one configured detector
type DetectorInfo struct {
	Kind     DetectionKind `json:"kind"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Category MediaCategory `json:"media_category"`
	Async    bool          `json:"async"`
}

// DetectorListResponse represents the list of configured detectors
type DetectorListResponse struct {
	Detectors []DetectorInfo `json:"detectors"`
}

// KindStats holds per-kind counters
type KindStats struct {
	Succeeded         int64   `json:"succeeded"`
	Failed            int64   `json:"failed"`
	AvgProcessingTime float64 `json:"avg_processing_time_ms"`
}

// StatsResponse represents statistics response
type StatsResponse struct {
	ActiveSessions int64                       `json:"active_sessions"`
	MediaAnalyzed  int64                       `json:"media_analyzed"`
	Kinds          map[DetectionKind]KindStats `json:"kinds"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string `json:"status"`
	Detectors int    `json:"detectors"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
