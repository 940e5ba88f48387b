// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring.
// The package provides comprehensive observability features
// including metrics collection, distributed tracing, and logging.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// ForgeRequestsTotal counts calls made through the Hybrid Forge Client
	// by query style (compound or fine-grained) and operation.
	ForgeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forge_requests_total",
			Help: "Total number of forge requests by query style and operation",
		},
		[]string{"query_style", "operation"},
	)
	// ForgeRequestDuration records durations of forge requests by query style and operation.
	ForgeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forge_request_duration_seconds",
			Help:    "Forge request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"query_style", "operation"},
	)
	// ForgeFallbacksTotal counts compound-to-fine-grained fallbacks by reason.
	ForgeFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forge_fallbacks_total",
			Help: "Total number of fallbacks from compound to fine-grained queries",
		},
		[]string{"reason"},
	)
	// ForgePointsSavedTotal accumulates the rate-limit points the compound
	// query style is estimated to have saved over fine-grained equivalents.
	ForgePointsSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forge_points_saved_total",
			Help: "Estimated rate-limit points saved by using compound queries",
		},
	)

	// JobsEnqueuedTotal counts jobs enqueued by backend.
	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of capture jobs enqueued",
		},
		[]string{"backend", "kind"},
	)
	// JobsProcessing is a gauge of the number of currently processing jobs by backend.
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of capture jobs currently processing",
		},
		[]string{"backend", "kind"},
	)
	// JobsCompletedTotal counts jobs completed by backend.
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of capture jobs completed",
		},
		[]string{"backend", "kind"},
	)
	// JobsFailedTotal counts jobs failed by backend.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of capture jobs failed",
		},
		[]string{"backend", "kind"},
	)

	// RateLimitRemaining tracks the governor's last-observed remaining
	// rate-limit budget per backend.
	RateLimitRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rate_limit_remaining",
			Help: "Last observed remaining rate-limit points",
		},
		[]string{"backend"},
	)
	// RateLimitExhaustedTotal counts governor rejections due to exhausted budget.
	RateLimitExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_exhausted_total",
			Help: "Total number of requests rejected by the rate-limit governor",
		},
		[]string{"backend"},
	)

	// RolloutPercentage tracks the current rollout percentage per feature.
	RolloutPercentage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollout_percentage",
			Help: "Current rollout percentage for a feature",
		},
		[]string{"feature"},
	)
	// RolloutGatedTotal counts repositories gated out of a feature by the rollout controller.
	RolloutGatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_gated_total",
			Help: "Total number of repositories gated out of a feature rollout",
		},
		[]string{"feature"},
	)

	// CircuitBreakerStatus tracks circuit breaker state.
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_status",
			Help: "Circuit breaker status (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service", "operation"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ForgeRequestsTotal)
	prometheus.MustRegister(ForgeRequestDuration)
	prometheus.MustRegister(ForgeFallbacksTotal)
	prometheus.MustRegister(ForgePointsSavedTotal)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(RateLimitRemaining)
	prometheus.MustRegister(RateLimitExhaustedTotal)
	prometheus.MustRegister(RolloutPercentage)
	prometheus.MustRegister(RolloutGatedTotal)
	prometheus.MustRegister(CircuitBreakerStatus)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// EnqueueJob increments the enqueued jobs counter for the given backend and kind.
func EnqueueJob(backend, kind string) {
	JobsEnqueuedTotal.WithLabelValues(backend, kind).Inc()
}

// StartProcessingJob increments the processing gauge for the given backend and kind.
func StartProcessingJob(backend, kind string) {
	JobsProcessing.WithLabelValues(backend, kind).Inc()
}

// CompleteJob marks a job complete by decrementing processing gauge and incrementing completed counter.
func CompleteJob(backend, kind string) {
	JobsProcessing.WithLabelValues(backend, kind).Dec()
	JobsCompletedTotal.WithLabelValues(backend, kind).Inc()
}

// FailJob marks a job failed by decrementing processing gauge and incrementing failed counter.
func FailJob(backend, kind string) {
	JobsProcessing.WithLabelValues(backend, kind).Dec()
	JobsFailedTotal.WithLabelValues(backend, kind).Inc()
}

// RecordForgeRequest records one forge call's outcome and latency.
func RecordForgeRequest(queryStyle, operation string, dur time.Duration) {
	ForgeRequestsTotal.WithLabelValues(queryStyle, operation).Inc()
	ForgeRequestDuration.WithLabelValues(queryStyle, operation).Observe(dur.Seconds())
}

// RecordForgeFallback records a compound-to-fine-grained fallback.
func RecordForgeFallback(reason string) {
	ForgeFallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordForgePointsSaved accumulates estimated rate-limit points saved.
func RecordForgePointsSaved(points int) {
	ForgePointsSavedTotal.Add(float64(points))
}

// RecordRateLimitRemaining records the governor's last-observed remaining budget.
func RecordRateLimitRemaining(backend string, remaining int) {
	RateLimitRemaining.WithLabelValues(backend).Set(float64(remaining))
}

// RecordRateLimitExhausted records a governor rejection.
func RecordRateLimitExhausted(backend string) {
	RateLimitExhaustedTotal.WithLabelValues(backend).Inc()
}

// RecordRolloutPercentage records the current rollout percentage for a feature.
func RecordRolloutPercentage(feature string, percentage int) {
	RolloutPercentage.WithLabelValues(feature).Set(float64(percentage))
}

// RecordRolloutGated records a repository gated out of a feature rollout.
func RecordRolloutGated(feature string) {
	RolloutGatedTotal.WithLabelValues(feature).Inc()
}

// RecordCircuitBreakerStatus records circuit breaker state.
func RecordCircuitBreakerStatus(service, operation string, status int) {
	CircuitBreakerStatus.WithLabelValues(service, operation).Set(float64(status))
}
