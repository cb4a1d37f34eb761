package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggerMiddleware handles request logging
type LoggerMiddleware struct {
	logger *zap.Logger
}

// NewLoggerMiddleware creates a new logger middleware
func NewLoggerMiddleware(logger *zap.Logger) *LoggerMiddleware {
	return &LoggerMiddleware{
		logger: logger,
	}
}

// RequestLogger logs every request except health checks and metric scrapes
func (m *LoggerMiddleware) RequestLogger() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/ready", "/metrics"},
		Formatter: func(param gin.LogFormatterParams) string {
			fields := []zap.Field{
				zap.String("client_ip", param.ClientIP),
				zap.String("method", param.Method),
				zap.String("path", param.Path),
				zap.Int("status_code", param.StatusCode),
				zap.Duration("latency", param.Latency),
				zap.String("user_agent", param.Request.UserAgent()),
			}
			if param.ErrorMessage != "" {
				fields = append(fields, zap.String("error", param.ErrorMessage))
			}

			if param.StatusCode >= 500 {
				m.logger.Error("Request", fields...)
			} else {
				m.logger.Info("Request", fields...)
			}
			return ""
		},
	})
}
