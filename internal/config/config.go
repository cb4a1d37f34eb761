package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"8080" validate:"required,numeric"`
	APIKey          string        `env:"API_KEY"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	MaxFileSizeMB   int64         `env:"MAX_FILE_SIZE_MB" envDefault:"20" validate:"min=1,max=1024"`
	TempDir         string        `env:"TEMP_DIR"`
	SessionIdleTTL  time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m" validate:"min=1s"`
	JanitorInterval time.Duration `env:"SESSION_JANITOR_INTERVAL" envDefault:"1m" validate:"min=1s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	EdenAI    EdenAIConfig    `envPrefix:"EDENAI_"`
	Chat      ChatConfig      `envPrefix:"CHAT_"`
}

// RateLimitConfig bounds inbound requests per client IP
type RateLimitConfig struct {
	RequestsPerSecond float64       `env:"RPS" envDefault:"10" validate:"gt=0"`
	Burst             int           `env:"BURST" envDefault:"30" validate:"min=1"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"1h"`
}

// EdenAIConfig configures the three detection endpoints
type EdenAIConfig struct {
	BaseURL             string        `env:"BASE_URL" envDefault:"https://api.edenai.run" validate:"required,url"`
	Token               string        `env:"API_TOKEN"`
	DeepfakeProvider    string        `env:"DEEPFAKE_PROVIDER" envDefault:"sightengine" validate:"required"`
	AIDetectionProvider string        `env:"AI_DETECTION_PROVIDER" envDefault:"winstonai" validate:"required"`
	ExplicitProvider    string        `env:"EXPLICIT_PROVIDER" envDefault:"amazon" validate:"required"`
	Timeout             time.Duration `env:"TIMEOUT" envDefault:"60s"`
	RequestsPerSecond   float64       `env:"REQUESTS_PER_SECOND" envDefault:"5" validate:"gt=0"`
	Burst               int           `env:"BURST" envDefault:"5" validate:"min=1"`
	PollInterval        time.Duration `env:"POLL_INTERVAL" envDefault:"5s" validate:"min=1ms"`
	PollRetries         int           `env:"POLL_RETRIES" envDefault:"20" validate:"min=0"`
}

// ChatConfig selects and configures the assistant provider
type ChatConfig struct {
	Provider      string        `env:"PROVIDER" envDefault:"gemini" validate:"oneof=gemini openai"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"60s"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	GeminiModel   string        `env:"GEMINI_MODEL" envDefault:"gemini-pro"`
	GeminiBaseURL string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1" validate:"omitempty,url"`
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIModel   string        `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL" validate:"omitempty,url"`
}

// MaxFileSizeBytes returns the upload limit in bytes
func (c *Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

func LoadConfig(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.EdenAI.Token == "" {
		logger.Warn("EDENAI_API_TOKEN is not set, detection requests will be rejected by the provider")
	}

	return cfg, nil
}
