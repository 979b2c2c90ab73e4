package externaldata

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError_HTTPStatus(t *testing.T) {
	assert.Equal(t, FailureHTTPServerError, ClassifyError(nil, http.StatusTooManyRequests))
	assert.Equal(t, FailureHTTPServerError, ClassifyError(nil, http.StatusBadGateway))
	assert.Equal(t, FailureHTTPClientError, ClassifyError(nil, http.StatusBadRequest))
}

func TestClassifyError_Timeout(t *testing.T) {
	assert.Equal(t, FailureTimeout, ClassifyError(context.DeadlineExceeded, 0))
}

func TestFailureClass_Retryable(t *testing.T) {
	assert.True(t, FailureTimeout.Retryable())
	assert.True(t, FailureConnection.Retryable())
	assert.True(t, FailureHTTPServerError.Retryable())
	assert.False(t, FailureHTTPClientError.Retryable())
	assert.False(t, FailureMalformedResponse.Retryable())
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2, JitterFraction: 0}
	attempts := 0

	err := WithRetry(context.Background(), cfg, zerolog.Nop(), func() (FailureClass, error) {
		attempts++
		if attempts < 3 {
			return FailureHTTPServerError, errors.New("server error")
		}
		return FailureUnknown, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_DoesNotRetryNonRetryableClass(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2, JitterFraction: 0}
	attempts := 0

	err := WithRetry(context.Background(), cfg, zerolog.Nop(), func() (FailureClass, error) {
		attempts++
		return FailureHTTPClientError, errors.New("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2, JitterFraction: 0}
	attempts := 0

	err := WithRetry(context.Background(), cfg, zerolog.Nop(), func() (FailureClass, error) {
		attempts++
		return FailureHTTPServerError, errors.New("still failing")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestWithRetry_RespectsContextCancellation(t *testing.T) {
	cfg := DefaultRetryConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, cfg, zerolog.Nop(), func() (FailureClass, error) {
		return FailureHTTPServerError, errors.New("unreachable")
	})
	require.Error(t, err)
}
