// Package ratelimit provides per-client token bucket rate limiting for both
// HTTP stacks in the project. Each client IP gets its own bucket; the bucket
// refills continuously at the configured rate and absorbs bursts up to the
// configured size.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// bucket is a single client's token bucket
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newBucket(rate float64, burst int) *bucket {
	return &bucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

func (b *bucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// retryAfter reports how many whole seconds until the next token is available
func (b *bucket) retryAfter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.refillRate) + 1
}

// Limiter holds per-client buckets keyed by IP
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	limit   int
	logger  *logger.Logger
}

// NewLimiter creates a limiter from configuration. RequestsPerMin is converted
// to a per-second refill rate.
func NewLimiter(cfg *config.RateLimitConfig, log *logger.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.RequestsPerMin) / 60.0,
		burst:   cfg.BurstSize,
		limit:   cfg.RequestsPerMin,
		logger:  log,
	}
}

// Allow consumes one token for the client key. When the bucket is empty it
// returns false and the number of seconds the client should wait.
func (l *Limiter) Allow(key string) (bool, int) {
	b := l.bucketFor(key)
	if b.take() {
		return true, 0
	}
	return false, b.retryAfter()
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b = newBucket(l.rate, l.burst)
	l.buckets[key] = b
	return b
}

// Handler is the net/http middleware form, for the mux router
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.Allow(clientIP(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		if !allowed {
			l.reject(r.URL.Path, clientIP(r))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   types.ErrCodeRateLimited,
				"message": "too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Gin is the gin middleware form, for the IAM router
func (l *Limiter) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := l.Allow(c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit))
		if !allowed {
			l.reject(c.Request.URL.Path, c.ClientIP())
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   types.ErrCodeRateLimited,
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}

func (l *Limiter) reject(path, ip string) {
	l.logger.Security("rate_limit_exceeded", "", map[string]interface{}{
		"path":      path,
		"client_ip": ip,
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return r.RemoteAddr
}
