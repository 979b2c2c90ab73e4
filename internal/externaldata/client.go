package externaldata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

// ProviderConfig configures one upstream's transport.
type ProviderConfig struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// httpProvider is the shared transport shape for all three upstreams: a
// bounded HTTP client, a token-bucket limiter for backpressure, and a
// circuit breaker supplied by the caller so all three providers can share
// one internal/circuitbreaker.Manager.
type httpProvider struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	baseURL    string
	name       string
	log        zerolog.Logger
}

func newHTTPProvider(name string, cfg ProviderConfig, breaker *gobreaker.CircuitBreaker, log zerolog.Logger) *httpProvider {
	return &httpProvider{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker:    breaker,
		baseURL:    cfg.BaseURL,
		name:       name,
		log:        log.With().Str("provider", name).Logger(),
	}
}

// getJSON performs a rate-limited, circuit-broken, retried GET against path
// and decodes the JSON body into out.
func (p *httpProvider) getJSON(ctx context.Context, path string, out interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", p.name, err)
	}

	retryErr := WithRetry(ctx, DefaultRetryConfig(), p.log, func() (FailureClass, error) {
		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, p.fetch(ctx, path, out)
		})
		if err == nil {
			return FailureUnknown, nil
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			// The breaker rejected the call without reaching the provider:
			// fail fast instead of retrying.
			return FailureUnknown, err
		}
		if statusErr, ok := err.(*httpStatusError); ok {
			return ClassifyError(err, statusErr.status), err
		}
		return ClassifyError(err, 0), err
	})
	return retryErr
}

func (p *httpProvider) fetch(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	if cid := correlationIDFrom(ctx); cid != "" {
		req.Header.Set("X-Correlation-ID", cid)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &httpStatusError{provider: p.name, status: resp.StatusCode, body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

type httpStatusError struct {
	provider string
	status   int
	body     string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.provider, e.status, e.body)
}

// BorrowRateClient resolves a ticker's current borrow rate.
type BorrowRateClient struct{ *httpProvider }

type borrowRateResponse struct {
	Rate string `json:"rate"`
}

// NewBorrowRateClient builds a client for the borrow-rate provider.
func NewBorrowRateClient(cfg ProviderConfig, breaker *gobreaker.CircuitBreaker, log zerolog.Logger) *BorrowRateClient {
	return &BorrowRateClient{newHTTPProvider("borrow_rate", cfg, breaker, log)}
}

// Fetch returns the raw rate string reported for ticker, along with a
// DataSource describing provenance.
func (c *BorrowRateClient) Fetch(ctx context.Context, ticker string) (string, domain.DataSource, error) {
	var resp borrowRateResponse
	if err := c.getJSON(ctx, "/borrows/"+ticker, &resp); err != nil {
		return "", domain.DataSource{}, err
	}
	return resp.Rate, domain.DataSource{
		SourceName: "borrow_rate_provider",
		SourceType: domain.SourceTypeAPI,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// VolatilityClient resolves a ticker's current volatility index.
type VolatilityClient struct{ *httpProvider }

type volatilityResponse struct {
	Index string `json:"volatility_index"`
}

// NewVolatilityClient builds a client for the volatility provider.
func NewVolatilityClient(cfg ProviderConfig, breaker *gobreaker.CircuitBreaker, log zerolog.Logger) *VolatilityClient {
	return &VolatilityClient{newHTTPProvider("volatility", cfg, breaker, log)}
}

// Fetch returns the raw volatility index string for ticker.
func (c *VolatilityClient) Fetch(ctx context.Context, ticker string) (string, domain.DataSource, error) {
	var resp volatilityResponse
	if err := c.getJSON(ctx, "/market/volatility/"+ticker, &resp); err != nil {
		return "", domain.DataSource{}, err
	}
	return resp.Index, domain.DataSource{
		SourceName: "volatility_provider",
		SourceType: domain.SourceTypeAPI,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// EventCalendarClient resolves a ticker's current event-risk factor.
type EventCalendarClient struct{ *httpProvider }

type eventCalendarResponse struct {
	RiskFactor int `json:"event_risk_factor"`
}

// NewEventCalendarClient builds a client for the event-calendar provider.
func NewEventCalendarClient(cfg ProviderConfig, breaker *gobreaker.CircuitBreaker, log zerolog.Logger) *EventCalendarClient {
	return &EventCalendarClient{newHTTPProvider("event_calendar", cfg, breaker, log)}
}

// Fetch returns the event-risk factor (points) for ticker.
func (c *EventCalendarClient) Fetch(ctx context.Context, ticker string) (int, domain.DataSource, error) {
	var resp eventCalendarResponse
	if err := c.getJSON(ctx, "/events/"+ticker, &resp); err != nil {
		return 0, domain.DataSource{}, err
	}
	return resp.RiskFactor, domain.DataSource{
		SourceName: "event_calendar_provider",
		SourceType: domain.SourceTypeAPI,
		Timestamp:  time.Now().UTC(),
	}, nil
}
