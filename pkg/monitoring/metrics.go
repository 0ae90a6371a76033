package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "service"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// Visit lifecycle metrics
	visitTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visit_transitions_total",
			Help: "Total number of visit lifecycle transitions",
		},
		[]string{"from", "to", "status", "service"},
	)

	// Payment metrics
	checkoutSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Total number of checkout sessions created",
		},
		[]string{"mode", "mock", "service"},
	)

	paymentResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_resolutions_total",
			Help: "Total number of checkout session resolutions",
		},
		[]string{"status", "service"},
	)

	// AI documentation metrics
	inferenceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_calls_total",
			Help: "Total number of AI inference calls",
		},
		[]string{"operation", "status", "service"},
	)

	inferenceCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_call_duration_seconds",
			Help:    "Duration of AI inference calls in seconds",
			Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"operation", "service"},
	)

	// Authentication metrics
	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "status", "service"},
	)

	// Audit metrics
	auditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Total number of audit events",
		},
		[]string{"event_type", "success", "service"},
	)
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	serviceName string
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		visitTransitionsTotal,
		checkoutSessionsTotal,
		paymentResolutionsTotal,
		inferenceCallsTotal,
		inferenceCallDuration,
		authAttemptsTotal,
		auditEventsTotal,
	)

	return &MetricsCollector{
		serviceName: serviceName,
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordVisitTransition records a visit lifecycle transition attempt
func (m *MetricsCollector) RecordVisitTransition(from, to, status string) {
	visitTransitionsTotal.WithLabelValues(from, to, status, m.serviceName).Inc()
}

// RecordCheckoutSession records a checkout session creation
func (m *MetricsCollector) RecordCheckoutSession(mode string, mock bool) {
	checkoutSessionsTotal.WithLabelValues(mode, strconv.FormatBool(mock), m.serviceName).Inc()
}

// RecordPaymentResolution records a checkout session resolution
func (m *MetricsCollector) RecordPaymentResolution(status string) {
	paymentResolutionsTotal.WithLabelValues(status, m.serviceName).Inc()
}

// RecordInferenceCall records an AI inference call
func (m *MetricsCollector) RecordInferenceCall(operation, status string, duration time.Duration) {
	inferenceCallsTotal.WithLabelValues(operation, status, m.serviceName).Inc()
	inferenceCallDuration.WithLabelValues(operation, m.serviceName).Observe(duration.Seconds())
}

// RecordAuthAttempt records authentication attempt metrics
func (m *MetricsCollector) RecordAuthAttempt(method, status string) {
	authAttemptsTotal.WithLabelValues(method, status, m.serviceName).Inc()
}

// RecordAuditEvent records audit event metrics
func (m *MetricsCollector) RecordAuditEvent(eventType string, success bool) {
	auditEventsTotal.WithLabelValues(eventType, strconv.FormatBool(success), m.serviceName).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware creates middleware for HTTP request metrics
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		m.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode), time.Since(start))
	})
}

// responseWriter captures the status code written by a handler
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
