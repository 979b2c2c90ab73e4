package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastSettings() ServiceSettings {
	return ServiceSettings{MinRequests: 2, FailureRatio: 1.0, OpenTimeout: 10 * time.Millisecond, HalfOpenMaxReqs: 1, CountInterval: time.Second}
}

func TestManager_TripsOpenAfterFailures(t *testing.T) {
	m := NewManagerWithSettings(fastSettings(), fastSettings(), fastSettings())

	fail := func() (interface{}, error) { return nil, errors.New("boom") }
	_, _ = m.BorrowRate().Execute(fail)
	_, _ = m.BorrowRate().Execute(fail)

	assert.Equal(t, gobreaker.StateOpen.String(), m.BorrowRate().State().String())

	_, err := m.BorrowRate().Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestManager_RecoversThroughHalfOpen(t *testing.T) {
	m := NewManagerWithSettings(fastSettings(), fastSettings(), fastSettings())

	fail := func() (interface{}, error) { return nil, errors.New("boom") }
	_, _ = m.Volatility().Execute(fail)
	_, _ = m.Volatility().Execute(fail)
	require.Equal(t, gobreaker.StateOpen.String(), m.Volatility().State().String())

	time.Sleep(20 * time.Millisecond)

	result, err := m.Volatility().Execute(func() (interface{}, error) { return "recovered", nil })
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, gobreaker.StateClosed.String(), m.Volatility().State().String())
}

func TestManager_ProvidersAreIndependent(t *testing.T) {
	m := NewManagerWithSettings(fastSettings(), fastSettings(), fastSettings())

	fail := func() (interface{}, error) { return nil, errors.New("boom") }
	_, _ = m.EventCalendar().Execute(fail)
	_, _ = m.EventCalendar().Execute(fail)

	assert.Equal(t, gobreaker.StateOpen.String(), m.EventCalendar().State().String())
	assert.Equal(t, gobreaker.StateClosed.String(), m.BorrowRate().State().String())
	assert.Equal(t, gobreaker.StateClosed.String(), m.Volatility().State().String())
}

func TestPassthroughManager_NeverTrips(t *testing.T) {
	m := NewPassthroughManager()
	fail := func() (interface{}, error) { return nil, errors.New("boom") }
	for i := 0; i < 50; i++ {
		_, _ = m.BorrowRate().Execute(fail)
	}
	assert.Equal(t, gobreaker.StateClosed.String(), m.BorrowRate().State().String())
}

func TestMetrics_RecordRequestDoesNotPanic(t *testing.T) {
	m := NewManager()
	assert.NotPanics(t, func() {
		m.Metrics().RecordRequest("borrow_rate", true)
		m.Metrics().RecordRequest("borrow_rate", false)
	})
}
