package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	// HTTPRequestDuration tracks request latency by method, path, and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Database metrics
var (
	// DBTransactionDuration tracks transaction duration by operation label.
	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_transaction_duration_seconds",
			Help:    "Duration of database transactions in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// DBVersionConflicts counts optimistic-concurrency conflicts by operation.
	DBVersionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_version_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts",
		},
		[]string{"operation"},
	)
)

// Business metrics
var (
	// CreditRequestsCreated counts created credit requests.
	CreditRequestsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_requests_created_total",
			Help: "Total number of credit requests created",
		},
	)

	// AffordabilityVerdicts counts evaluator verdicts by outcome.
	AffordabilityVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affordability_verdicts_total",
			Help: "Total number of affordability verdicts produced",
		},
		[]string{"verdict"},
	)

	// CreditRequestDecisions counts lifecycle decisions by final state.
	CreditRequestDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_request_decisions_total",
			Help: "Total number of credit request decisions applied",
		},
		[]string{"state"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns an HTTP middleware that records request metrics.
// Side effects: records Prometheus metrics and reads the current time.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics endpoint itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)
		path := normalizePath(r.URL.Path)

		HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// normalizePath normalizes URL paths to avoid cardinality explosion.
// Replaces numeric request ids with a placeholder.
func normalizePath(path string) string {
	const prefix = "/credit-requests/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := path[len(prefix):]
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return prefix + "{id}" + rest[idx:]
	}
	return prefix + "{id}"
}

// RecordVersionConflict increments the version conflict counter.
// Side effects: records a Prometheus metric.
func RecordVersionConflict(operation string) {
	DBVersionConflicts.WithLabelValues(operation).Inc()
}

// RecordTransactionDuration records a transaction duration.
// Side effects: records a Prometheus metric.
func RecordTransactionDuration(operation string, duration time.Duration) {
	DBTransactionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordVerdict increments the affordability verdict counter.
// Side effects: records a Prometheus metric.
func RecordVerdict(verdict string) {
	AffordabilityVerdicts.WithLabelValues(verdict).Inc()
}

// RecordDecision increments the decision counter for the resulting state.
// Side effects: records a Prometheus metric.
func RecordDecision(state string) {
	CreditRequestDecisions.WithLabelValues(state).Inc()
}
