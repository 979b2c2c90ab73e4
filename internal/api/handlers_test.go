package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galatea-associates/locate-fee-engine/internal/apierr"
	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

type fakePricing struct {
	result  domain.CalculationResult
	err     *apierr.Error
	rate    domain.RateContext
	rateErr *apierr.Error
}

func (f *fakePricing) Calculate(context.Context, domain.CalculationRequest) (domain.CalculationResult, *apierr.Error) {
	return f.result, f.err
}

func (f *fakePricing) LookupRate(context.Context, string, string) (domain.RateContext, *apierr.Error) {
	return f.rate, f.rateErr
}

func newTestServer(pricing PricingService) *Server {
	gin.SetMode(gin.TestMode)
	cfg := Config{
		Host:             "localhost",
		Port:             0,
		MaxConcurrency:   100,
		RequestTimeout:   time.Second,
		RateLimitEnabled: false,
	}
	return NewServer(cfg, pricing, zerolog.Nop())
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakePricing{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
}

func TestCalculateLocate_Success(t *testing.T) {
	pricing := &fakePricing{result: domain.CalculationResult{
		TotalFee: decimal.RequireFromString("672.26"),
		Breakdown: domain.FeeBreakdown{
			BorrowCost:      decimal.RequireFromString("616.44"),
			Markup:          decimal.RequireFromString("30.82"),
			TransactionFees: decimal.RequireFromString("25.00"),
		},
		BorrowRateUsed: decimal.RequireFromString("0.075"),
	}}
	s := newTestServer(pricing)

	payload := calculateLocateRequest{
		Ticker:        "AAPL",
		PositionValue: decimal.NewFromInt(100000),
		LoanDays:      30,
		ClientID:      "client123",
	}
	b, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/calculate-locate", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body calculateLocateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.True(t, body.TotalFee.Equal(decimal.RequireFromString("672.26")))
}

func TestCalculateLocate_UnknownTickerReturns404(t *testing.T) {
	pricing := &fakePricing{err: apierr.TickerNotFound("ZZZZZ")}
	s := newTestServer(pricing)

	payload := calculateLocateRequest{Ticker: "ZZZZZ", PositionValue: decimal.NewFromInt(1000), LoanDays: 10, ClientID: "client123"}
	b, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/calculate-locate", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "TICKER_NOT_FOUND", body.Error.Code)
}

func TestCalculateLocate_MalformedBodyReturns400(t *testing.T) {
	s := newTestServer(&fakePricing{})

	req := httptest.NewRequest(http.MethodPost, "/calculate-locate", bytes.NewReader([]byte(`{"ticker":`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRate_ReturnsResolvedContext(t *testing.T) {
	vol := decimal.RequireFromString("1.5")
	pricing := &fakePricing{rate: domain.RateContext{
		BaseRate:        decimal.RequireFromString("0.05"),
		VolatilityIndex: &vol,
		BaseRateSource:  domain.DataSource{SourceName: "borrow_rate_provider", SourceType: domain.SourceTypeAPI},
	}}
	s := newTestServer(pricing)

	req := httptest.NewRequest(http.MethodGet, "/rates/AAPL", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body rateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AAPL", body.Ticker)
	assert.True(t, body.BorrowRate.Equal(decimal.RequireFromString("0.05")))
}

func TestAuth_RejectsMissingKeyWhenConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := Config{Host: "localhost", MaxConcurrency: 100, APIKeys: []string{"secret-key"}}
	s := NewServer(cfg, &fakePricing{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/rates/AAPL", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_AcceptsValidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := Config{Host: "localhost", MaxConcurrency: 100, APIKeys: []string{"secret-key"}}
	s := NewServer(cfg, &fakePricing{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/rates/AAPL", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := Config{
		Host:             "localhost",
		MaxConcurrency:   1000,
		RateLimitEnabled: true,
		ReadMaxReqs:      1,
		ReadWindow:       time.Minute,
	}
	s := NewServer(cfg, &fakePricing{}, zerolog.Nop())

	req1 := httptest.NewRequest(http.MethodGet, "/rates/AAPL", nil)
	rec1 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec1, req1)
	assert.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/rates/AAPL", nil)
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))
}

func TestBackpressure_RejectsWhenLimiterExhausted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := Config{Host: "localhost", MaxConcurrency: 1}
	s := NewServer(cfg, &fakePricing{}, zerolog.Nop())
	// Drain the single burst token synchronously before any request runs.
	s.limiter.Allow()

	req := httptest.NewRequest(http.MethodGet, "/rates/AAPL", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
