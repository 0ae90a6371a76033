package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

func testLimiter(requestsPerMin, burst int) *Limiter {
	return NewLimiter(&config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: requestsPerMin,
		BurstSize:      burst,
	}, logger.New("error"))
}

func TestAllowWithinBurst(t *testing.T) {
	limiter := testLimiter(1, 3)

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.Allow("10.0.0.1")
		assert.True(t, allowed, "request %d should be within burst", i+1)
	}

	allowed, retryAfter := limiter.Allow("10.0.0.1")
	assert.False(t, allowed)
	assert.GreaterOrEqual(t, retryAfter, 1)
}

func TestAllowIsolatesClients(t *testing.T) {
	limiter := testLimiter(1, 1)

	allowed, _ := limiter.Allow("10.0.0.1")
	assert.True(t, allowed)

	allowed, _ = limiter.Allow("10.0.0.1")
	assert.False(t, allowed)

	// A different client has its own bucket
	allowed, _ = limiter.Allow("10.0.0.2")
	assert.True(t, allowed)
}

func TestHandlerRejectsOverLimit(t *testing.T) {
	limiter := testLimiter(1, 1)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/visits", nil)
	req.RemoteAddr = "10.0.0.1:52000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.ErrCodeRateLimited, body["error"])
}

func TestHandlerKeysOnForwardedClient(t *testing.T) {
	limiter := testLimiter(1, 1)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodGet, "/api/v1/visits", nil)
	first.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A request forwarded for a different client is not throttled
	other := httptest.NewRequest(http.MethodGet, "/api/v1/visits", nil)
	other.Header.Set("X-Forwarded-For", "203.0.113.8")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGinRejectsOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := testLimiter(1, 1)
	router := gin.New()
	router.Use(limiter.Gin())
	router.GET("/api/v1/auth/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:52000"

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.ErrCodeRateLimited, body["error"])
}

func TestRetryAfterWithZeroRate(t *testing.T) {
	limiter := testLimiter(0, 1)

	allowed, _ := limiter.Allow("10.0.0.1")
	assert.True(t, allowed)

	allowed, retryAfter := limiter.Allow("10.0.0.1")
	assert.False(t, allowed)
	assert.Equal(t, 1, retryAfter)
}
