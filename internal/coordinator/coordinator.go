// Package coordinator implements the Pricing Coordinator of §4.6: validate
// input, resolve broker config and ticker reference data, resolve the base
// rate / volatility / event-risk signals (cache first, then provider, then
// fallback), run the calculation engine, and hand the finished result to the
// audit sink before returning. No component here holds a back-reference to
// its caller; data flows one way from request to response.
package coordinator

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/galatea-associates/locate-fee-engine/internal/apierr"
	"github.com/galatea-associates/locate-fee-engine/internal/cache"
	"github.com/galatea-associates/locate-fee-engine/internal/domain"
	"github.com/galatea-associates/locate-fee-engine/internal/externaldata"
	"github.com/galatea-associates/locate-fee-engine/internal/metrics"
	"github.com/galatea-associates/locate-fee-engine/internal/validation"
)

// TickerRepo resolves ticker reference data. internal/db.TickerRepo
// satisfies this without modification (structural typing).
type TickerRepo interface {
	Get(ctx context.Context, symbol string) (domain.Ticker, *apierr.Error)
}

// BrokerRepo resolves broker configuration. internal/db.BrokerRepo
// satisfies this without modification.
type BrokerRepo interface {
	Get(ctx context.Context, clientID string) (domain.BrokerConfig, *apierr.Error)
}

// RateResolver resolves the three external signals a RateContext is built
// from. internal/externaldata.Resolver satisfies this without modification.
type RateResolver interface {
	ResolveBorrowRate(ctx context.Context, ticker string, tickerMinRate, globalMinRate decimal.Decimal) (decimal.Decimal, domain.DataSource)
	ResolveVolatility(ctx context.Context, ticker string) (*decimal.Decimal, domain.DataSource)
	ResolveEventRisk(ctx context.Context, ticker string) (*int, domain.DataSource)
}

// Engine computes a CalculationResult from validated inputs and a resolved
// RateContext. internal/engine.Engine satisfies this without modification.
type Engine interface {
	Calculate(req domain.CalculationRequest, ticker domain.Ticker, broker domain.BrokerConfig, ctx domain.RateContext) (domain.CalculationResult, *apierr.Error)
}

// AuditSink persists one AuditRecord per finished calculation.
// internal/audit.Sink satisfies this without modification.
type AuditSink interface {
	Record(ctx context.Context, rec domain.AuditRecord) *apierr.Error
}

// Coordinator wires the five core components together per §4.6.
type Coordinator struct {
	tickers             TickerRepo
	brokers             BrokerRepo
	cache               cache.Strategy
	resolver            RateResolver
	engine              Engine
	audit               AuditSink
	globalMinBorrowRate decimal.Decimal
	stalenessMultiplier int
	log                 zerolog.Logger
}

// Option configures optional Coordinator behavior.
type Option func(*Coordinator)

// WithStalenessMultiplier overrides the widened staleness window (in
// multiples of the prefix's default TTL) the borrow-rate fallback chain
// uses, per §4.6. Defaults to 2 (the spec's "e.g. 2x TTL" example).
func WithStalenessMultiplier(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.stalenessMultiplier = n
		}
	}
}

// New builds a Coordinator. globalMinBorrowRate is the fallback of last
// resort per §4.6, used only if a ticker is somehow missing its own
// min_borrow_rate (a configuration error the caller should have prevented
// by validating reference data at load time).
func New(tickers TickerRepo, brokers BrokerRepo, strategy cache.Strategy, resolver RateResolver, engine Engine, audit AuditSink, globalMinBorrowRate decimal.Decimal, log zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		tickers:             tickers,
		brokers:             brokers,
		cache:               strategy,
		resolver:            resolver,
		engine:              engine,
		audit:               audit,
		globalMinBorrowRate: globalMinBorrowRate,
		stalenessMultiplier: 2,
		log:                 log.With().Str("component", "coordinator").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate runs the full pricing pipeline for one request. It fails only
// for invalid input, unknown ticker, unknown/inactive broker, a ticker or
// broker lookup that fails with an internal error, or an engine invariant
// violation. Every other
// failure (a slow or down upstream provider, a degraded cache tier) is
// absorbed as a fallback substitution and never reaches the caller.
func (c *Coordinator) Calculate(ctx context.Context, req domain.CalculationRequest) (domain.CalculationResult, *apierr.Error) {
	start := time.Now()
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	ctx = externaldata.WithCorrelationID(ctx, req.CorrelationID)
	log := c.log.With().Str("correlation_id", req.CorrelationID).Logger()

	if verr := validation.ValidateCalculationRequest(req); verr != nil {
		metrics.RecordCalculation("validation_error", time.Since(start))
		return domain.CalculationResult{}, verr.WithCorrelationID(req.CorrelationID)
	}

	var ticker domain.Ticker
	var broker domain.BrokerConfig

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := c.tickers.Get(gctx, req.Ticker)
		if err != nil {
			return err
		}
		ticker = t
		return nil
	})
	g.Go(func() error {
		b, err := c.resolveBroker(gctx, req.ClientID)
		if err != nil {
			return err
		}
		broker = b
		return nil
	})
	if err := g.Wait(); err != nil {
		apiErr, ok := apierr.As(err)
		if !ok {
			apiErr = apierr.Internal(err)
		}
		metrics.RecordCalculation(outcomeFor(apiErr), time.Since(start))
		return domain.CalculationResult{}, apiErr.WithCorrelationID(req.CorrelationID)
	}

	if !broker.Active {
		metrics.RecordCalculation("client_inactive", time.Since(start))
		return domain.CalculationResult{}, apierr.ClientInactive(req.ClientID).WithCorrelationID(req.CorrelationID)
	}

	rateCtx := c.resolveRateContext(ctx, ticker)

	result, calcErr := c.engine.Calculate(req, ticker, broker, rateCtx)
	if calcErr != nil {
		log.Error().Str("code", calcErr.Code).Msg("calculation invariant violated")
		metrics.RecordCalculation("calculation_error", time.Since(start))
		return domain.CalculationResult{}, calcErr.WithCorrelationID(req.CorrelationID)
	}

	c.recordFallbackMetrics(rateCtx)

	rec := domain.AuditRecord{
		AuditID:       uuid.New(),
		Timestamp:     time.Now().UTC(),
		Ticker:        req.Ticker,
		PositionValue: req.PositionValue,
		LoanDays:      req.LoanDays,
		ClientID:      req.ClientID,
		Result:        result,
		DataSources:   []domain.DataSource{rateCtx.BaseRateSource, rateCtx.VolatilitySource, rateCtx.EventRiskSource},
		CorrelationID: req.CorrelationID,
	}
	if auditErr := c.audit.Record(ctx, rec); auditErr != nil {
		// Per §4.5/§7 an audit persistence failure never masks the
		// user-facing response; it is an internal alarm only.
		log.Error().Err(auditErr).Str("audit_id", rec.AuditID.String()).Msg("audit persistence failed")
	}

	c.writeCalculationDiagnostic(ctx, req, result)

	metrics.RecordCalculation("success", time.Since(start))
	return result, nil
}

// LookupRate resolves the current rate context for ticker without running a
// full calculation, backing the GET /rates/{ticker} diagnostic endpoint. It
// shares the same cache-first resolution path Calculate uses, so the two
// never disagree about what's currently cached. correlationID is attached to
// ctx so upstream provider calls carry it, same as Calculate.
func (c *Coordinator) LookupRate(ctx context.Context, symbol, correlationID string) (domain.RateContext, *apierr.Error) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = externaldata.WithCorrelationID(ctx, correlationID)

	ticker, err := c.tickers.Get(ctx, symbol)
	if err != nil {
		return domain.RateContext{}, err
	}
	return c.resolveRateContext(ctx, ticker), nil
}

func (c *Coordinator) resolveBroker(ctx context.Context, clientID string) (domain.BrokerConfig, *apierr.Error) {
	key := keyFor(cache.PrefixBrokerConfig, clientID)

	if v, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var cfg domain.BrokerConfig
		if jerr := json.Unmarshal([]byte(v.Value), &cfg); jerr == nil {
			metrics.RecordCacheOp(string(cache.PrefixBrokerConfig), true)
			return cfg, nil
		}
	}
	metrics.RecordCacheOp(string(cache.PrefixBrokerConfig), false)

	cfg, err := c.brokers.Get(ctx, clientID)
	if err != nil {
		return domain.BrokerConfig{}, err
	}

	if payload, jerr := json.Marshal(cfg); jerr == nil {
		c.cacheWriteThrough(ctx, key, string(payload), "database", cache.TTLFor(cache.PrefixBrokerConfig))
	}
	return cfg, nil
}

func (c *Coordinator) cacheWriteThrough(ctx context.Context, key, value, source string, ttl time.Duration) {
	err := c.cache.Set(ctx, key, cache.StoredValue{Value: value, Source: source, Timestamp: time.Now().UTC()}, ttl)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write-through failed")
	}
}

func (c *Coordinator) recordFallbackMetrics(rc domain.RateContext) {
	if rc.BaseRateSource.IsFallback {
		metrics.RecordFallback("borrow_rate")
	}
	if rc.VolatilitySource.IsFallback {
		metrics.RecordFallback("volatility")
	}
	if rc.EventRiskSource.IsFallback {
		metrics.RecordFallback("event_risk")
	}
}

// writeCalculationDiagnostic stores the finished result under the
// "calculation:" prefix per §4.3's key table. It is write-only: nothing
// reads this entry back to short-circuit computation, since §5 requires two
// submissions of the same request to produce two independent audit records.
// It exists for diagnostics and to exercise the prefix's documented TTL.
func (c *Coordinator) writeCalculationDiagnostic(ctx context.Context, req domain.CalculationRequest, result domain.CalculationResult) {
	key := keyFor(cache.PrefixCalculation, req.Ticker, req.ClientID, req.PositionValue.String(), strconv.Itoa(req.LoanDays))
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.cacheWriteThrough(ctx, key, string(payload), "coordinator", cache.TTLFor(cache.PrefixCalculation))
}

func outcomeFor(err *apierr.Error) string {
	switch err.Kind {
	case apierr.KindTickerNotFound:
		return "ticker_not_found"
	case apierr.KindClientNotFound:
		return "client_not_found"
	case apierr.KindClientInactive:
		return "client_inactive"
	case apierr.KindValidation:
		return "validation_error"
	default:
		return "internal_error"
	}
}
