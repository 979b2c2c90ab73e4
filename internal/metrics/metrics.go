// Package metrics declares the process-global Prometheus collectors for the
// locate-fee pricing pipeline, grounded on the teacher's internal/metrics
// package-level promauto declarations — trimmed to the counters and gauges
// this domain needs instead of the teacher's full crypto-trading surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CalculationDuration tracks end-to-end latency of one locate-fee
	// calculation, labeled by outcome so slow fallback paths are visible
	// separately from the happy path.
	CalculationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "locate_fee_calculation_duration_seconds",
		Help:    "Duration of a locate-fee calculation request.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// CalculationsTotal counts calculations by outcome (success, validation_error,
	// ticker_not_found, client_not_found, client_inactive, calculation_error,
	// internal_error).
	CalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locate_fee_calculations_total",
		Help: "Total locate-fee calculations, labeled by outcome.",
	}, []string{"outcome"})

	// CacheOperations counts cache Get calls by key prefix and result (hit/miss).
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locate_fee_cache_operations_total",
		Help: "Cache operations, labeled by key prefix and result.",
	}, []string{"prefix", "result"})

	// ExternalFetchDuration tracks per-provider fetch latency.
	ExternalFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "locate_fee_external_fetch_duration_seconds",
		Help:    "Duration of an upstream provider fetch.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// FallbackSubstitutions counts how often a signal was substituted with a
	// fallback value, labeled by signal — this is the metric that
	// feeds the compliance "fallback frequency" question without a query.
	FallbackSubstitutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locate_fee_fallback_substitutions_total",
		Help: "Count of fallback substitutions, labeled by signal.",
	}, []string{"signal"})

	// AuditOutcomes counts audit writes by terminal state (persisted, buffered, failed).
	AuditOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locate_fee_audit_outcomes_total",
		Help: "Audit append outcomes, labeled by terminal state.",
	}, []string{"state"})

	// BusyRejections counts requests rejected by the backpressure limiter.
	BusyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locate_fee_busy_rejections_total",
		Help: "Requests rejected by the backpressure limiter.",
	})
)

// RecordCalculation records one finished calculation's outcome and latency.
func RecordCalculation(outcome string, duration time.Duration) {
	CalculationsTotal.WithLabelValues(outcome).Inc()
	CalculationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCacheOp records a cache lookup outcome for a given key prefix.
func RecordCacheOp(prefix string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheOperations.WithLabelValues(prefix, result).Inc()
}

// RecordFallback records a fallback substitution for the named signal
// (borrow_rate, volatility, event_risk).
func RecordFallback(signal string) {
	FallbackSubstitutions.WithLabelValues(signal).Inc()
}

// RecordAuditOutcome records the terminal state an audit append reached.
func RecordAuditOutcome(state string) {
	AuditOutcomes.WithLabelValues(state).Inc()
}
