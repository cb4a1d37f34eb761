package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"media-forensics-service/internal/config"
	"media-forensics-service/internal/conversation"
	"media-forensics-service/internal/detectors"
	"media-forensics-service/internal/handlers"
	"media-forensics-service/internal/heatmap"
	"media-forensics-service/internal/middleware"
	"media-forensics-service/internal/services"
	"media-forensics-service/internal/storage"
)

func main() {
	// Initialize logger
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	logger, err := initLogger(level)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(logger)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logger.Warn("Invalid log level, keeping info", zap.String("level", cfg.LogLevel))
	}

	// Transient media storage
	store, err := storage.NewTempStore(cfg.TempDir, logger.With(zap.String("component", "storage")))
	if err != nil {
		logger.Fatal("Failed to initialize media storage", zap.Error(err))
	}
	if removed, err := store.Purge(); err != nil {
		logger.Warn("Failed to purge leftover media", zap.Error(err))
	} else if removed > 0 {
		logger.Info("Purged leftover media", zap.Int("files", removed))
	}

	// Detection clients and chat provider
	detectorLogger := logger.With(zap.String("component", "detectors"))
	clients := []services.Detector{
		detectors.NewDeepfakeClient(edenConfig(cfg, cfg.EdenAI.DeepfakeProvider), heatmap.NewRandomSynthesizer(), detectorLogger),
		detectors.NewAIGeneratedClient(edenConfig(cfg, cfg.EdenAI.AIDetectionProvider), detectorLogger),
		detectors.NewExplicitContentClient(
			edenConfig(cfg, cfg.EdenAI.ExplicitProvider),
			detectors.PollConfig{Interval: cfg.EdenAI.PollInterval, Retries: cfg.EdenAI.PollRetries},
			detectorLogger,
		),
	}
	chat := newChatProvider(cfg, logger.With(zap.String("component", "chat")))

	// Initialize analysis service
	metrics := services.NewMetrics()
	analysisService := services.NewAnalysisService(cfg, clients, chat, store, metrics, logger.With(zap.String("component", "analysis")))

	// Check if service is ready
	if !analysisService.IsReady() {
		logger.Fatal("Service is not ready - detectors missing")
	}

	// Initialize handlers
	h := handlers.New(analysisService, cfg.MaxFileSizeBytes(), logger.With(zap.String("component", "http")))

	// Initialize middlewares
	authMiddleware := middleware.NewAuthMiddleware(cfg.APIKey, logger)
	loggerMiddleware := middleware.NewLoggerMiddleware(logger)
	recoveryMiddleware := middleware.NewRecoveryMiddleware(logger)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.CORSOrigins)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(
		logger,
		cfg.RateLimit.RequestsPerSecond,
		cfg.RateLimit.Burst,
		cfg.RateLimit.IdleTimeout,
	)
	defer rateLimitMiddleware.Stop()

	// Set Gin to release mode
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := gin.New()
	router.MaxMultipartMemory = 8 << 20

	// Apply global middlewares
	router.Use(loggerMiddleware.RequestLogger())
	router.Use(recoveryMiddleware.RecoveryWithZap())
	router.Use(corsMiddleware.SetupCORS())
	router.Use(rateLimitMiddleware.RateLimit())

	// Health, readiness and metrics endpoints (no auth required)
	h.RegisterPublic(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Protected endpoints (auth required)
	protected := router.Group("/")
	protected.Use(authMiddleware.AuthRequired())
	h.RegisterProtected(protected)

	// Create HTTP server
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Create a deadline for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown the server gracefully
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := analysisService.Close(); err != nil {
		logger.Error("Failed to close sessions", zap.Error(err))
	}
	logger.Info("Server exited")
}

func edenConfig(cfg *config.Config, provider string) detectors.Config {
	return detectors.Config{
		BaseURL:           cfg.EdenAI.BaseURL,
		Token:             cfg.EdenAI.Token,
		Provider:          provider,
		Timeout:           cfg.EdenAI.Timeout,
		RequestsPerSecond: cfg.EdenAI.RequestsPerSecond,
		Burst:             cfg.EdenAI.Burst,
	}
}

func newChatProvider(cfg *config.Config, logger *zap.Logger) conversation.Provider {
	if cfg.Chat.Provider == "openai" {
		return conversation.NewOpenAIProvider(conversation.OpenAIConfig{
			BaseURL: cfg.Chat.OpenAIBaseURL,
			APIKey:  cfg.Chat.OpenAIAPIKey,
			Model:   cfg.Chat.OpenAIModel,
		}, logger)
	}
	return conversation.NewGeminiProvider(conversation.GeminiConfig{
		BaseURL: cfg.Chat.GeminiBaseURL,
		APIKey:  cfg.Chat.GeminiAPIKey,
		Model:   cfg.Chat.GeminiModel,
		Timeout: cfg.Chat.Timeout,
	}, logger)
}

// initLogger initializes the logger with proper configuration
func initLogger(level zap.AtomicLevel) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = level

	return config.Build()
}
