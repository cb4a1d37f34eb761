package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1"
	DefaultGeminiModel   = "gemini-pro"

	blockThreshold = "BLOCK_MEDIUM_AND_ABOVE"
)

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GeminiConfig configures the Gemini provider
type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiProvider calls the Gemini generateContent endpoint
type GeminiProvider struct {
	cfg    GeminiConfig
	hc     *http.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a Gemini chat provider
func NewGeminiProvider(cfg GeminiConfig, logger *zap.Logger) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiProvider{
		cfg:    cfg,
		hc:     &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Reply(ctx context.Context, history []models.Turn) (string, error) {
	body := geminiRequest{
		Contents: make([]geminiContent, 0, len(history)),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 1024,
		},
	}
	for _, turn := range history {
		if turn.Failed {
			continue
		}
		role := "user"
		if turn.Speaker == models.SpeakerAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Text}}})
	}
	for _, category := range harmCategories {
		body.SafetySettings = append(body.SafetySettings, geminiSafetySetting{Category: category, Threshold: blockThreshold})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(p.cfg.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)

	resp, err := p.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", models.NewTimeoutError(p.Name(), "request timed out", err)
		}
		return "", models.NewNetworkError(p.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewNetworkError(p.Name(), err)
	}

	var decoded geminiResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := http.StatusText(resp.StatusCode)
		if decodeErr == nil && decoded.Error != nil && decoded.Error.Message != "" {
			message = decoded.Error.Message
		}
		return "", models.NewProviderError(p.Name(), resp.StatusCode, message)
	}
	if decodeErr != nil {
		return "", models.NewProviderError(p.Name(), resp.StatusCode, "malformed payload")
	}

	if reason := decoded.PromptFeedback.BlockReason; reason != "" {
		return "", models.NewProviderError(p.Name(), resp.StatusCode, "prompt blocked: "+reason)
	}
	if len(decoded.Candidates) == 0 {
		return "", models.NewProviderError(p.Name(), resp.StatusCode, "no candidates returned")
	}

	candidate := decoded.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return "", models.NewProviderError(p.Name(), resp.StatusCode, "reply blocked by safety settings")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return "", models.NewProviderError(p.Name(), resp.StatusCode, "empty reply")
	}

	p.logger.Debug("Gemini reply received",
		zap.String("model", p.cfg.Model),
		zap.String("finish_reason", candidate.FinishReason),
	)
	return text.String(), nil
}
