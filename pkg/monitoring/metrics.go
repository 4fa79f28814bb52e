package monitoring

import (
	"net/http"
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
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Matching metrics
	matchingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_runs_total",
			Help: "Total number of matching sessions by outcome",
		},
		[]string{"outcome"},
	)

	matchingRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_run_duration_seconds",
			Help:    "Duration of matching sessions in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0},
		},
	)

	matchesAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matches_applied_total",
			Help: "Total number of committed match assignments",
		},
		[]string{"mode"}, // automated or manual
	)

	matchesRevertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matches_reverted_total",
			Help: "Total number of reverted match assignments",
		},
	)

	// Conflict metrics
	conflictsDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflicts_detected_total",
			Help: "Total number of newly detected conflicts by type",
		},
		[]string{"type"},
	)

	conflictResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflict_resolutions_total",
			Help: "Total number of resolved conflicts by method",
		},
		[]string{"method"},
	)

	conflictScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conflict_scan_duration_seconds",
			Help:    "Duration of conflict scans in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		matchingRunsTotal,
		matchingRunDuration,
		matchesAppliedTotal,
		matchesRevertedTotal,
		conflictsDetectedTotal,
		conflictResolutionsTotal,
		conflictScanDuration,
	)
}

// RecordHTTPRequest records an HTTP request metric
func RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordMatchingRun records the outcome and duration of a matching session
func RecordMatchingRun(outcome string, duration time.Duration) {
	matchingRunsTotal.WithLabelValues(outcome).Inc()
	matchingRunDuration.Observe(duration.Seconds())
}

// RecordMatchApplied records a committed assignment
func RecordMatchApplied(manual bool) {
	mode := "automated"
	if manual {
		mode = "manual"
	}
	matchesAppliedTotal.WithLabelValues(mode).Inc()
}

// RecordMatchReverted records a reverted assignment
func RecordMatchReverted() {
	matchesRevertedTotal.Inc()
}

// RecordConflictDetected records a newly detected conflict
func RecordConflictDetected(conflictType string) {
	conflictsDetectedTotal.WithLabelValues(conflictType).Inc()
}

// RecordConflictResolved records a resolved conflict
func RecordConflictResolved(method string) {
	conflictResolutionsTotal.WithLabelValues(method).Inc()
}

// RecordConflictScan records a conflict scan duration
func RecordConflictScan(duration time.Duration) {
	conflictScanDuration.Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
