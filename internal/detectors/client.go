package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"media-forensics-service/internal/models"
)

// Client analyzes one media with one external provider
type Client interface {
	Kind() models.DetectionKind
	Analyze(ctx context.Context, media models.UploadedMedia) (models.Result, error)
	Describe() models.DetectorInfo
}

var (
	_ Client = (*DeepfakeClient)(nil)
	_ Client = (*AIGeneratedClient)(nil)
	_ Client = (*ExplicitContentClient)(nil)
)

// Config holds the connection settings of one Eden AI backed detector
type Config struct {
	BaseURL           string
	Token             string
	Provider          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

const maxErrorBody = 512

// edenClient carries the HTTP plumbing shared by all detectors
type edenClient struct {
	cfg     Config
	hc      *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newEdenClient(cfg Config, logger *zap.Logger) *edenClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &edenClient{
		cfg:     cfg,
		hc:      &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(zap.String("provider", cfg.Provider)),
	}
}

// postMedia uploads the media as multipart form data and decodes the JSON reply
func (c *edenClient) postMedia(ctx context.Context, path string, media models.UploadedMedia, out any) error {
	body, contentType, err := c.multipartBody(media)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	return c.do(req, out)
}

// getJSON fetches a JSON document from the provider
func (c *edenClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *edenClient) multipartBody(media models.UploadedMedia) (io.Reader, string, error) {
	src, err := media.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open media: %w", err)
	}
	defer src.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("providers", c.cfg.Provider); err != nil {
		return nil, "", fmt.Errorf("failed to write providers field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, media.Filename))
	header.Set("Content-Type", media.MIMEType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("failed to copy media: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

func (c *edenClient) do(req *http.Request, out any) error {
	ctx := req.Context()
	if err := c.limiter.Wait(ctx); err != nil {
		return c.contextError(ctx, err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return c.contextError(ctx, err)
		}
		return models.NewNetworkError(c.cfg.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return models.NewProviderError(c.cfg.Provider, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return models.NewProviderError(c.cfg.Provider, resp.StatusCode, "malformed payload: "+err.Error())
	}
	return nil
}

func (c *edenClient) contextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewTimeoutError(c.cfg.Provider, "deadline exceeded", err)
	}
	return models.NewNetworkError(c.cfg.Provider, err)
}

// edenStatus is the per-provider envelope of every Eden AI response
type edenStatus struct {
	Status string          `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// providerBlock extracts and decodes the block of the configured provider
func (c *edenClient) providerBlock(blocks map[string]json.RawMessage, out any) error {
	raw, ok := blocks[c.cfg.Provider]
	if !ok {
		return models.NewProviderError(c.cfg.Provider, 0, "no results for provider")
	}

	var status edenStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return models.NewProviderError(c.cfg.Provider, 0, "malformed payload: "+err.Error())
	}
	if strings.EqualFold(status.Status, "fail") || strings.EqualFold(status.Status, "failed") {
		return models.NewProviderError(c.cfg.Provider, 0, errorMessage(status.Error))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return models.NewProviderError(c.cfg.Provider, 0, "malformed payload: "+err.Error())
	}
	return nil
}

// errorMessage renders an Eden AI error that may be a string or an object
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "unknown error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func checkApplicable(kind models.DetectionKind, media models.UploadedMedia) error {
	if !kind.AppliesTo(media.Category) {
		return models.NewValidationError("%s detection does not apply to %s media", kind, media.Category)
	}
	return nil
}

func modelName(provider string) string {
	return "Eden AI (" + provider + ")"
}
