package detectors

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

const aiDetectionPath = "/v2/image/ai_detection"

// AIGeneratedClient detects images produced by generative models
type AIGeneratedClient struct {
	eden *edenClient
}

// NewAIGeneratedClient creates an AI-generation detector
func NewAIGeneratedClient(cfg Config, logger *zap.Logger) *AIGeneratedClient {
	return &AIGeneratedClient{
		eden: newEdenClient(cfg, logger.With(zap.String("detector", string(models.KindAIGenerated)))),
	}
}

type aiGeneratedBlock struct {
	Prediction string   `json:"prediction"`
	Confidence *float64 `json:"confidence"`
}

func (c *AIGeneratedClient) Kind() models.DetectionKind { return models.KindAIGenerated }

func (c *AIGeneratedClient) Describe() models.DetectorInfo {
	return models.DetectorInfo{
		Kind:     models.KindAIGenerated,
		Provider: c.eden.cfg.Provider,
		Model:    modelName(c.eden.cfg.Provider),
		Category: models.MediaImage,
	}
}

func (c *AIGeneratedClient) Analyze(ctx context.Context, media models.UploadedMedia) (models.Result, error) {
	if err := checkApplicable(models.KindAIGenerated, media); err != nil {
		return nil, err
	}
	startTime := time.Now()

	var blocks map[string]json.RawMessage
	if err := c.eden.postMedia(ctx, aiDetectionPath, media, &blocks); err != nil {
		return nil, err
	}

	var block aiGeneratedBlock
	if err := c.eden.providerBlock(blocks, &block); err != nil {
		return nil, err
	}
	if block.Prediction == "" || block.Confidence == nil {
		return nil, models.NewProviderError(c.eden.cfg.Provider, 0, "response has no prediction or confidence")
	}

	result := &models.AIGeneratedResult{
		Prediction: parsePrediction(block.Prediction),
		Confidence: NormalizeScore(*block.Confidence),
		Metadata: models.ProviderMetadata{
			Model:             modelName(c.eden.cfg.Provider),
			ProcessingSeconds: time.Since(startTime).Seconds(),
		},
	}

	c.eden.logger.Debug("AI generation analysis finished",
		zap.String("media_id", media.ID),
		zap.String("prediction", string(result.Prediction)),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}
