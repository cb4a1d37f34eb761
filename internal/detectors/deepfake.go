package detectors

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/heatmap"
	"media-forensics-service/internal/models"
)

const deepfakePath = "/v2/image/deepfake_detection"

// deepfakeConfidence is reported for every result; the provider has no
// confidence field of its own
const deepfakeConfidence = 0.9

// DeepfakeClient detects facial manipulation in images
type DeepfakeClient struct {
	eden  *edenClient
	synth *heatmap.Synthesizer
	rows  int
	cols  int
}

// NewDeepfakeClient creates a deepfake detector. A nil synthesizer gets a
// clock-seeded one.
func NewDeepfakeClient(cfg Config, synth *heatmap.Synthesizer, logger *zap.Logger) *DeepfakeClient {
	if synth == nil {
		synth = heatmap.NewRandomSynthesizer()
	}
	return &DeepfakeClient{
		eden:  newEdenClient(cfg, logger.With(zap.String("detector", string(models.KindDeepfake)))),
		synth: synth,
		rows:  heatmap.DefaultRows,
		cols:  heatmap.DefaultCols,
	}
}

type deepfakeBlock struct {
	Items []struct {
		Deepfake struct {
			Score *float64 `json:"score"`
		} `json:"deepfake"`
	} `json:"items"`
}

func (c *DeepfakeClient) Kind() models.DetectionKind { return models.KindDeepfake }

func (c *DeepfakeClient) Describe() models.DetectorInfo {
	return models.DetectorInfo{
		Kind:     models.KindDeepfake,
		Provider: c.eden.cfg.Provider,
		Model:    modelName(c.eden.cfg.Provider),
		Category: models.MediaImage,
	}
}

// Analyze uploads the image and converts the 0-100 provider score
func (c *DeepfakeClient) Analyze(ctx context.Context, media models.UploadedMedia) (models.Result, error) {
	if err := checkApplicable(models.KindDeepfake, media); err != nil {
		return nil, err
	}
	startTime := time.Now()

	var blocks map[string]json.RawMessage
	if err := c.eden.postMedia(ctx, deepfakePath, media, &blocks); err != nil {
		return nil, err
	}

	var block deepfakeBlock
	if err := c.eden.providerBlock(blocks, &block); err != nil {
		return nil, err
	}
	if len(block.Items) == 0 || block.Items[0].Deepfake.Score == nil {
		return nil, models.NewProviderError(c.eden.cfg.Provider, 0, "response has no deepfake score")
	}

	score := FromPercent(*block.Items[0].Deepfake.Score)
	artifacts, inconsistencies, unnatural := synthesizeSubScores(score)

	result := &models.DeepfakeResult{
		Score:           score,
		Artifacts:       artifacts,
		Inconsistencies: inconsistencies,
		Unnatural:       unnatural,
		Heatmap:         c.synth.Synthesize(score, c.rows, c.cols),
		Metadata: models.DeepfakeMetadata{
			Model:             modelName(c.eden.cfg.Provider),
			Confidence:        deepfakeConfidence,
			ProcessingSeconds: time.Since(startTime).Seconds(),
			SynthesizedFields: []string{
				models.FieldArtifacts,
				models.FieldInconsistencies,
				models.FieldUnnatural,
				models.FieldHeatmap,
				models.FieldConfidence,
			},
		},
	}

	c.eden.logger.Debug("Deepfake analysis finished",
		zap.String("media_id", media.ID),
		zap.Float64("score", score),
		zap.Float64("processing_seconds", result.Metadata.ProcessingSeconds),
	)
	return result, nil
}
