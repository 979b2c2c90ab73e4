// Package circuitbreaker wraps github.com/sony/gobreaker with one named
// breaker per upstream provider plus a Prometheus-backed state export. It is
// the Go expression of §4.2's CLOSED/OPEN/HALF_OPEN state machine.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// ServiceSettings configures one provider's breaker.
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// DefaultBorrowRateSettings matches §4.2's defaults: open after 5 consecutive
// failures, 30s cool-down, single half-open probe.
func DefaultBorrowRateSettings() ServiceSettings {
	return ServiceSettings{MinRequests: 5, FailureRatio: 1.0, OpenTimeout: 30 * time.Second, HalfOpenMaxReqs: 1, CountInterval: time.Minute}
}

// DefaultVolatilitySettings uses the same thresholds as borrow rate; all
// three providers share the spec's single default unless overridden.
func DefaultVolatilitySettings() ServiceSettings { return DefaultBorrowRateSettings() }

// DefaultEventCalendarSettings uses the same thresholds as borrow rate.
func DefaultEventCalendarSettings() ServiceSettings { return DefaultBorrowRateSettings() }

var (
	metricsOnce     sync.Once
	singletonMetric *Metrics
)

// Metrics holds the process-global Prometheus collectors for all breakers.
// It is a singleton (guarded by sync.Once) because promauto panics if the
// same collector is registered twice, and every Manager in the process
// shares one registry.
type Metrics struct {
	state   *prometheus.GaugeVec
	trips   *prometheus.CounterVec
	outcome *prometheus.CounterVec
}

func newMetrics() *Metrics {
	return &Metrics{
		state: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "locate_fee_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open).",
		}, []string{"provider"}),
		trips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_fee_circuit_breaker_trips_total",
			Help: "Total number of times a provider's circuit breaker has opened.",
		}, []string{"provider"}),
		outcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_fee_circuit_breaker_requests_total",
			Help: "Requests observed by the circuit breaker, labeled by outcome.",
		}, []string{"provider", "outcome"}),
	}
}

func sharedMetrics() *Metrics {
	metricsOnce.Do(func() {
		singletonMetric = newMetrics()
	})
	return singletonMetric
}

// RecordRequest records one observed outcome against the shared metrics.
func (m *Metrics) RecordRequest(provider string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.outcome.WithLabelValues(provider, outcome).Inc()
}

// Manager holds one gobreaker.CircuitBreaker per upstream provider.
type Manager struct {
	borrowRate    *gobreaker.CircuitBreaker
	volatility    *gobreaker.CircuitBreaker
	eventCalendar *gobreaker.CircuitBreaker
	metrics       *Metrics
}

// NewManager builds a Manager using the spec's defaults for every provider.
func NewManager() *Manager {
	return NewManagerWithSettings(
		DefaultBorrowRateSettings(),
		DefaultVolatilitySettings(),
		DefaultEventCalendarSettings(),
	)
}

// NewManagerWithSettings builds a Manager with explicit per-provider settings,
// used by the server (settings from configuration) and by tests that need a
// shorter cool-down than production defaults.
func NewManagerWithSettings(borrowRate, volatility, eventCalendar ServiceSettings) *Manager {
	metrics := sharedMetrics()
	m := &Manager{metrics: metrics}

	m.borrowRate = newBreaker("borrow_rate", borrowRate, metrics)
	m.volatility = newBreaker("volatility", volatility, metrics)
	m.eventCalendar = newBreaker("event_calendar", eventCalendar, metrics)

	return m
}

// NewPassthroughManager returns a Manager whose breakers never trip — used in
// tests that exercise retry/fallback logic without circuit-breaker
// interference.
func NewPassthroughManager() *Manager {
	never := ServiceSettings{MinRequests: ^uint32(0), FailureRatio: 2.0, OpenTimeout: time.Second, HalfOpenMaxReqs: 1, CountInterval: time.Minute}
	return NewManagerWithSettings(never, never, never)
}

func newBreaker(name string, s ServiceSettings, metrics *Metrics) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMaxReqs,
		Interval:    s.CountInterval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= s.MinRequests {
				return true
			}
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			metrics.state.WithLabelValues(name).Set(stateValue(to))
			if to == gobreaker.StateOpen {
				metrics.trips.WithLabelValues(name).Inc()
			}
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// BorrowRate returns the borrow-rate provider's circuit breaker.
func (m *Manager) BorrowRate() *gobreaker.CircuitBreaker { return m.borrowRate }

// Volatility returns the volatility provider's circuit breaker.
func (m *Manager) Volatility() *gobreaker.CircuitBreaker { return m.volatility }

// EventCalendar returns the event-calendar provider's circuit breaker.
func (m *Manager) EventCalendar() *gobreaker.CircuitBreaker { return m.eventCalendar }

// Metrics returns the shared metrics instance backing this manager.
func (m *Manager) Metrics() *Metrics { return m.metrics }
