package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"media-forensics-service/internal/models"
)

// RateLimitMiddleware handles rate limiting
type RateLimitMiddleware struct {
	logger      *zap.Logger
	visitors    map[string]*Visitor
	mutex       sync.Mutex
	limit       rate.Limit
	burst       int
	idleTimeout time.Duration
	now         func() time.Time

	done chan struct{}
	once sync.Once
}

// Visitor is the token bucket of one client IP
type Visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimitMiddleware creates a new rate limit middleware allowing
// requestsPerSecond with the given burst per client IP
func NewRateLimitMiddleware(logger *zap.Logger, requestsPerSecond float64, burst int, idleTimeout time.Duration) *RateLimitMiddleware {
	if idleTimeout <= 0 {
		idleTimeout = time.Hour
	}
	r := &RateLimitMiddleware{
		logger:      logger,
		visitors:    make(map[string]*Visitor),
		limit:       rate.Limit(requestsPerSecond),
		burst:       burst,
		idleTimeout: idleTimeout,
		now:         time.Now,
		done:        make(chan struct{}),
	}

	go r.cleanupOldEntries()

	return r
}

// RateLimit limits requests based on IP address
func (r *RateLimitMiddleware) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := r.now()

		r.mutex.Lock()
		visitor, exists := r.visitors[ip]
		if !exists {
			visitor = &Visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
			r.visitors[ip] = visitor
		}
		visitor.lastSeen = now
		reservation := visitor.limiter.ReserveN(now, 1)
		r.mutex.Unlock()

		if !reservation.OK() || reservation.DelayFrom(now) > 0 {
			retryAfter := reservation.DelayFrom(now)
			reservation.CancelAt(now)

			r.logger.Warn("Rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: "Rate limit exceeded, please try again later",
			})
			return
		}

		c.Next()
	}
}

// Stop ends the cleanup goroutine
func (r *RateLimitMiddleware) Stop() {
	r.once.Do(func() { close(r.done) })
}

// cleanupOldEntries periodically removes idle visitors to prevent memory leaks
func (r *RateLimitMiddleware) cleanupOldEntries() {
	ticker := time.NewTicker(r.idleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evictIdle(r.now())
		}
	}
}

func (r *RateLimitMiddleware) evictIdle(now time.Time) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	removed := 0
	for ip, visitor := range r.visitors {
		if now.Sub(visitor.lastSeen) >= r.idleTimeout {
			delete(r.visitors, ip)
			removed++
		}
	}
	return removed
}
