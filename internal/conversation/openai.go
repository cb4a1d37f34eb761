package conversation

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

const finishContentFilter = "content_filter"

// OpenAIConfig configures the OpenAI provider
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// OpenAIProvider talks to the chat completions API
type OpenAIProvider struct {
	api    *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIProvider creates an OpenAI chat provider
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIProvider{
		api:    openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Reply(ctx context.Context, history []models.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, turn := range history {
		if turn.Failed {
			continue
		}
		role := openai.ChatMessageRoleUser
		if turn.Speaker == models.SpeakerAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}

	resp, err := p.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		return "", p.translate(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", models.NewProviderError(p.Name(), 0, "no completion response")
	}
	choice := resp.Choices[0]
	if string(choice.FinishReason) == finishContentFilter {
		return "", models.NewProviderError(p.Name(), 0, "reply blocked by content filter")
	}
	if choice.Message.Content == "" {
		return "", models.NewProviderError(p.Name(), 0, "empty reply")
	}

	p.logger.Debug("OpenAI reply received",
		zap.String("model", p.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return choice.Message.Content, nil
}

func (p *OpenAIProvider) translate(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return models.NewProviderError(p.Name(), apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return models.NewProviderError(p.Name(), reqErr.HTTPStatusCode, reqErr.Error())
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewTimeoutError(p.Name(), "request timed out", err)
	}
	return models.NewNetworkError(p.Name(), err)
}
