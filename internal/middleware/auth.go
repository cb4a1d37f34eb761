package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

var publicPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// AuthMiddleware handles API key authentication
type AuthMiddleware struct {
	apiKey string
	logger *zap.Logger
}

// NewAuthMiddleware creates a new auth middleware. An empty key disables
// authentication.
func NewAuthMiddleware(apiKey string, logger *zap.Logger) *AuthMiddleware {
	if apiKey == "" {
		logger.Warn("API_KEY is not set, authentication is disabled")
	}
	return &AuthMiddleware{
		apiKey: apiKey,
		logger: logger,
	}
}

// AuthRequired validates the API key sent as a bearer token or in the
// X-API-KEY header
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.apiKey == "" || publicPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-KEY")
		if apiKey == "" {
			if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				apiKey = token
			}
		}
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "API key is required"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.apiKey)) != 1 {
			m.logger.Warn("Invalid API key", zap.String("client_ip", c.ClientIP()), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid API key"})
			return
		}

		c.Next()
	}
}
