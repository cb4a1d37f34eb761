package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// CORSMiddleware handles Cross-Origin Resource Sharing
type CORSMiddleware struct {
	origins []string
}

// NewCORSMiddleware creates a new CORS middleware for the given origins
func NewCORSMiddleware(origins []string) *CORSMiddleware {
	return &CORSMiddleware{
		origins: origins,
	}
}

// SetupCORS sets up CORS configuration
func (m *CORSMiddleware) SetupCORS() gin.HandlerFunc {
	allowAll := len(m.origins) == 0
	for _, origin := range m.origins {
		if origin == "*" {
			allowAll = true
		}
	}

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   m.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-API-KEY"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: !allowAll,
		MaxAge:           86400,
	})

	return func(c *gin.Context) {
		corsMiddleware.HandlerFunc(c.Writer, c.Request)

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
