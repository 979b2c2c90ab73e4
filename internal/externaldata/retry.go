// Package externaldata resolves borrow-rate, volatility, and event-risk
// signals from upstream providers, per §4.2. Bounded retry and fan-out/join
// live here; circuit breaking is delegated to internal/circuitbreaker so the
// same breaker instance can be shared across calls from the coordinator.
package externaldata

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// FailureClass replaces the teacher's substring-matching error classifier
// with a typed enum so retry decisions don't depend on parsing error text.
type FailureClass int

const (
	FailureUnknown FailureClass = iota
	FailureTimeout
	FailureConnection
	FailureHTTPClientError // 4xx, not retried except 429
	FailureHTTPServerError // 5xx, retried
	FailureMalformedResponse
)

// Retryable reports whether an error of this class should be retried.
func (c FailureClass) Retryable() bool {
	switch c {
	case FailureTimeout, FailureConnection, FailureHTTPServerError:
		return true
	default:
		return false
	}
}

// ClassifyError inspects an error (and, when available, an HTTP status code)
// to determine its FailureClass. statusCode is 0 when no response was
// received at all.
func ClassifyError(err error, statusCode int) FailureClass {
	if statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode < 600) {
		return FailureHTTPServerError
	}
	if statusCode >= 400 && statusCode < 500 {
		return FailureHTTPClientError
	}

	if err == nil {
		return FailureUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureConnection
	}

	return FailureMalformedResponse
}

// RetryConfig configures bounded exponential backoff with jitter.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	JitterFraction float64 // e.g. 0.25 for +/-25%
}

// DefaultRetryConfig matches §4.2: base 100ms, factor 2, +/-25% jitter,
// two retries beyond the initial attempt (three attempts in all).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.25,
	}
}

// Operation is a retryable call that reports its own failure classification
// so WithRetry never has to parse an error string to decide.
type Operation func() (FailureClass, error)

// WithRetry executes operation, retrying only classes that Retryable()
// reports true, up to config.MaxRetries additional attempts.
func WithRetry(ctx context.Context, config RetryConfig, log zerolog.Logger, operation Operation) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		default:
		}

		class, err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !class.Retryable() {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		wait := jittered(backoff, config.JitterFraction)
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", wait).Msg("provider call failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled during backoff: %w", ctx.Err())
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffFactor)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

func jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	delta := float64(d) * fraction
	offset := (rand.Float64()*2 - 1) * delta
	result := float64(d) + offset
	if result < 0 {
		return 0
	}
	return time.Duration(result)
}
