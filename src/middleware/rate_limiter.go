package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterEntry holds a rate limiter with last used timestamp
type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter manages per-key token buckets with automatic cleanup
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// RateLimitConfig defines configuration for a rate limiter
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute / 10
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}

	k := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:    cfg.Burst,
		idleTTL:  10 * time.Minute,
		stopCh:   make(chan struct{}),
	}
	go k.cleanupLoop()
	return k
}

func (k *RateLimiter) getLimiter(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	if entry, ok := k.limiters[key]; ok {
		entry.lastUsed = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(k.limit, k.burst)
	k.limiters[key] = &limiterEntry{limiter: limiter, lastUsed: now}
	return limiter
}

// Allow consumes one token for key
func (k *RateLimiter) Allow(key string) bool {
	return k.getLimiter(key).Allow()
}

// cleanupLoop removes stale entries every 5 minutes
func (k *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.cleanup(time.Now())
		case <-k.stopCh:
			return
		}
	}
}

func (k *RateLimiter) cleanup(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := now.Add(-k.idleTTL)
	for key, entry := range k.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(k.limiters, key)
		}
	}
}

// Len returns the number of tracked keys
func (k *RateLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// Stop terminates the cleanup goroutine
func (k *RateLimiter) Stop() {
	k.stopOnce.Do(func() { close(k.stopCh) })
}

// retryAfterSeconds is the time until one token refills
func (k *RateLimiter) retryAfterSeconds() string {
	secs := math.Ceil(1 / float64(k.limit))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(int(secs))
}

// Middleware limits requests by the key returned from keyFunc. An empty key shares one bucket.
func (k *RateLimiter) Middleware(keyFunc func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			key = "__global__"
		}

		if !k.Allow(key) {
			c.Header("Retry-After", k.retryAfterSeconds())
			Abort(c, http.StatusTooManyRequests, CodeRateLimited, "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}

// ByAPIKey keys requests by the authenticated API key; run after RequireAPIKey
func ByAPIKey(c *gin.Context) string {
	return c.GetString(APIKeyIDKey)
}

// ByIP keys requests by client address
func ByIP(c *gin.Context) string {
	return c.ClientIP()
}
