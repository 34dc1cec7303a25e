package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/homeopathy-case-engine/internal/domain"
)

// clientLimiter tracks the token bucket of one caller.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client. Callers are keyed by their
// doctor id when present and by client IP otherwise.
type RateLimiter struct {
	logger  *logrus.Logger
	config  domain.RateLimitConfig
	clients map[string]*clientLimiter
	now     func() time.Time
	mu      sync.Mutex
}

// NewRateLimiter creates a per-client limiter. Non-positive rates fall back to
// 5 requests per second with a burst of 20.
func NewRateLimiter(cfg domain.RateLimitConfig, logger *logrus.Logger) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		logger:  logger,
		config:  cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow reports whether clientID may issue a request now.
func (rl *RateLimiter) Allow(clientID string) bool {
	if !rl.config.Enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients[clientID]
	if !ok {
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
		}
		rl.clients[clientID] = client
	}
	client.lastSeen = now

	return client.limiter.AllowN(now, 1)
}

// Cleanup drops clients idle for longer than the configured TTL and returns
// how many were removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.IdleTTL)
	removed := 0
	for id, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// StartCleanup evicts idle clients every interval until stop is closed.
func (rl *RateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := rl.Cleanup(); n > 0 {
					rl.logger.WithField("removed_clients", n).Debug("Evicted idle rate limit clients")
				}
			case <-stop:
				return
			}
		}
	}()
}

// RateLimit rejects requests over the per-client budget with 429.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetHeader(DoctorIDHeader)
		if clientID == "" {
			clientID = c.ClientIP()
		}

		if !rl.Allow(clientID) {
			rl.logger.WithFields(logrus.Fields{
				"client_id": clientID,
				"path":      c.Request.URL.Path,
			}).Warn("Request denied: rate limit exceeded")

			apiErr := domain.NewAPIError(
				domain.ErrCodeRateLimit,
				"Too many requests",
				"",
				c.GetString("request_id"),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": apiErr})
			return
		}

		c.Next()
	}
}
