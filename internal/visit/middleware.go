package visit

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// TokenValidator validates a bearer token and returns its claims
type TokenValidator interface {
	ValidateToken(token string) (*types.UserClaims, error)
}

// Middleware holds the HTTP middleware for the visit service
type Middleware struct {
	validator TokenValidator
	logger    *logger.Logger
}

// NewMiddleware creates new middleware
func NewMiddleware(validator TokenValidator, log *logger.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		logger:    log,
	}
}

// Authenticate validates the bearer token and attaches claims to the request
// context
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			m.unauthorized(w, "missing bearer token")
			return
		}

		claims, err := m.validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			m.unauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithClaims(r.Context(), claims)))
	})
}

// RequireClinician rejects requests whose claim is not a clinician or admin
// role
func (m *Middleware) RequireClinician(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := types.ClaimsFromContext(r.Context())
		if !ok {
			m.unauthorized(w, "missing credentials")
			return
		}

		if !claims.Role.IsClinician() && !claims.Role.IsAdmin() {
			m.logger.Security("insufficient_role", claims.UserID, map[string]interface{}{
				"path": r.URL.Path,
				"role": claims.Role,
			})
			m.unauthorized(w, "clinician role required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Logging logs each request with its outcome
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		m.logger.HTTPRequest(r.Context(), r.Method, r.URL.Path,
			r.UserAgent(), clientIP(r), wrapper.status, time.Since(start).Milliseconds())
	})
}

// SecurityHeaders sets standard security headers on every response
func (m *Middleware) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// CORS handles cross-origin requests
func (m *Middleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   types.ErrCodeUnauthorized,
		"message": message,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.Split(forwarded, ",")[0]
	}
	return r.RemoteAddr
}
