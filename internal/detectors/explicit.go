package detectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

const explicitContentPath = "/v2/video/explicit_content_detection_async"

const (
	jobFinished = "finished"
	jobFailed   = "failed"

	// defaultExplicitConfidence is reported when the provider omits confidence
	defaultExplicitConfidence = 0.5
)

// PollConfig bounds the wait for an asynchronous job. A job is polled once
// and then retried up to Retries more times, Interval apart.
type PollConfig struct {
	Interval time.Duration
	Retries  int
}

// ExplicitContentClient detects explicit material in videos through an
// asynchronous submit-then-poll job
type ExplicitContentClient struct {
	eden *edenClient
	poll PollConfig
}

// NewExplicitContentClient creates an explicit-content detector
func NewExplicitContentClient(cfg Config, poll PollConfig, logger *zap.Logger) *ExplicitContentClient {
	if poll.Interval <= 0 {
		poll.Interval = 5 * time.Second
	}
	if poll.Retries < 0 {
		poll.Retries = 0
	}
	return &ExplicitContentClient{
		eden: newEdenClient(cfg, logger.With(zap.String("detector", string(models.KindExplicitContent)))),
		poll: poll,
	}
}

type edenJob struct {
	PublicID string                     `json:"public_id"`
	Status   string                     `json:"status"`
	Error    json.RawMessage            `json:"error,omitempty"`
	Results  map[string]json.RawMessage `json:"results"`
}

type explicitBlock struct {
	NSFWLikelihood map[string]any `json:"nsfw_likelihood"`
	Confidence     *float64       `json:"confidence"`
}

func (c *ExplicitContentClient) Kind() models.DetectionKind { return models.KindExplicitContent }

func (c *ExplicitContentClient) Describe() models.DetectorInfo {
	return models.DetectorInfo{
		Kind:     models.KindExplicitContent,
		Provider: c.eden.cfg.Provider,
		Model:    modelName(c.eden.cfg.Provider),
		Category: models.MediaVideo,
		Async:    true,
	}
}

// Analyze submits the video and polls until the job settles
func (c *ExplicitContentClient) Analyze(ctx context.Context, media models.UploadedMedia) (models.Result, error) {
	if err := checkApplicable(models.KindExplicitContent, media); err != nil {
		return nil, err
	}
	startTime := time.Now()

	var submitted edenJob
	if err := c.eden.postMedia(ctx, explicitContentPath, media, &submitted); err != nil {
		return nil, err
	}
	if submitted.PublicID == "" {
		return nil, models.NewProviderError(c.eden.cfg.Provider, 0, "no public_id received")
	}
	c.eden.logger.Info("Explicit content job submitted",
		zap.String("media_id", media.ID),
		zap.String("public_id", submitted.PublicID),
	)

	results, err := c.waitForJob(ctx, submitted.PublicID)
	if err != nil {
		return nil, err
	}

	var block explicitBlock
	if err := c.eden.providerBlock(results, &block); err != nil {
		return nil, err
	}

	result := buildExplicitResult(block)
	result.Metadata.Model = modelName(c.eden.cfg.Provider)
	result.Metadata.ProcessingSeconds = time.Since(startTime).Seconds()
	return result, nil
}

// waitForJob polls the job status. finished returns the results, failed
// returns a provider error at once, anything else keeps polling until the
// budget runs out.
func (c *ExplicitContentClient) waitForJob(ctx context.Context, publicID string) (map[string]json.RawMessage, error) {
	path := explicitContentPath + "/" + url.PathEscape(publicID)
	attempts := c.poll.Retries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx); err != nil {
				return nil, err
			}
		}

		var job edenJob
		if err := c.eden.getJSON(ctx, path, &job); err != nil {
			if ctx.Err() != nil || !transient(err) {
				return nil, err
			}
			lastErr = err
			c.eden.logger.Warn("Polling failed, retrying",
				zap.String("public_id", publicID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		switch job.Status {
		case jobFinished:
			return job.Results, nil
		case jobFailed:
			return nil, models.NewProviderError(c.eden.cfg.Provider, 0, "processing failed: "+errorMessage(job.Error))
		}

		c.eden.logger.Debug("Job still processing",
			zap.String("public_id", publicID),
			zap.String("status", job.Status),
			zap.Int("attempt", attempt),
		)
	}

	return nil, models.NewTimeoutError(c.eden.cfg.Provider,
		fmt.Sprintf("job %s not finished after %d polls", publicID, attempts), lastErr)
}

func (c *ExplicitContentClient) sleep(ctx context.Context) error {
	timer := time.NewTimer(c.poll.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return c.eden.contextError(ctx, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// transient reports whether a failed poll may be retried
func transient(err error) bool {
	var de *models.DetectionError
	if !errors.As(err, &de) {
		return false
	}
	switch de.Kind {
	case models.ErrorKindNetwork:
		return true
	case models.ErrorKindProvider:
		return de.StatusCode == http.StatusTooManyRequests || de.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// buildExplicitResult picks the highest scoring category as the likelihood.
// The winner is chosen on the provider's own values; the whole response is
// then put on one scale, percentages if any value exceeds 1.
func buildExplicitResult(block explicitBlock) *models.ExplicitContentResult {
	raw := make(map[string]float64, len(block.NSFWLikelihood))
	scale := 1.0
	for category, value := range block.NSFWLikelihood {
		v, ok := value.(float64)
		if !ok || math.IsNaN(v) {
			continue
		}
		raw[category] = v
		if v > 1 {
			scale = 100
		}
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	highest := 0.0
	likelihood := models.LikelihoodSafe
	for _, name := range names {
		if raw[name] > highest {
			highest = raw[name]
			likelihood = models.ParseNSFWLikelihood(name)
		}
	}

	categories := make(map[string]float64, len(raw))
	for name, v := range raw {
		categories[name] = clamp01(v / scale)
	}

	result := &models.ExplicitContentResult{
		Score:          round2(clamp01(highest / scale)),
		NSFWLikelihood: likelihood,
		Categories:     categories,
	}
	if block.Confidence != nil {
		result.Confidence = round2(NormalizeScore(*block.Confidence))
	} else {
		result.Confidence = defaultExplicitConfidence
		result.Metadata.SynthesizedFields = []string{models.FieldConfidence}
	}
	return result
}
