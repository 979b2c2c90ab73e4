package externaldata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

// FallbackSource supplies the last-known-good values a Resolver falls back
// to when a provider is unavailable. internal/cache's Strategy satisfies a
// narrower version of this through an adapter in internal/coordinator.
type FallbackSource interface {
	LastKnownBorrowRate(ctx context.Context, ticker string) (decimal.Decimal, bool)
	LastKnownVolatility(ctx context.Context, ticker string) (decimal.Decimal, bool)
	LastKnownEventRisk(ctx context.Context, ticker string) (int, bool)
}

// Resolver fetches the three signals that make up a RateContext, applying
// the per-signal fallback policy on failure. Borrow rate is mandatory: the
// fallback chain always produces a value (last-known, then tickerMinRate),
// so the caller never sees an error for it. Volatility and event risk are
// optional: their absence degrades to a nil pointer, never a synthesized
// zero.
//
// Each signal also has its own exported method (ResolveBorrowRate,
// ResolveVolatility, ResolveEventRisk) so internal/coordinator's cache-first
// lookup can call the provider only for the signals that actually missed
// cache, instead of always re-fetching all three through Resolve.
type Resolver struct {
	borrowRate    *BorrowRateClient
	volatility    *VolatilityClient
	eventCalendar *EventCalendarClient
	fallback      FallbackSource
}

// NewResolver builds a Resolver over the three provider clients and a
// fallback source.
func NewResolver(borrowRate *BorrowRateClient, volatility *VolatilityClient, eventCalendar *EventCalendarClient, fallback FallbackSource) *Resolver {
	return &Resolver{borrowRate: borrowRate, volatility: volatility, eventCalendar: eventCalendar, fallback: fallback}
}

// Resolve fetches all three signals for ticker, joining on an errgroup so
// the slowest provider bounds total latency instead of their sum. The
// coordinator does not call it: with or without a cache it resolves each
// signal through the per-signal methods below.
func (r *Resolver) Resolve(ctx context.Context, ticker string, tickerMinRate, globalMinRate decimal.Decimal) (domain.RateContext, error) {
	g, gctx := errgroup.WithContext(ctx)

	var result domain.RateContext

	g.Go(func() error {
		rate, source := r.ResolveBorrowRate(gctx, ticker, tickerMinRate, globalMinRate)
		result.BaseRate = rate
		result.BaseRateSource = source
		return nil
	})

	g.Go(func() error {
		index, source := r.ResolveVolatility(gctx, ticker)
		result.VolatilityIndex = index
		result.VolatilitySource = source
		return nil
	})

	g.Go(func() error {
		factor, source := r.ResolveEventRisk(gctx, ticker)
		result.EventRiskFactor = factor
		result.EventRiskSource = source
		return nil
	})

	// No g.Go above ever returns a non-nil error: every failure path
	// resolves to a fallback value instead. g.Wait() is kept so a future
	// signal that does need to fail hard has somewhere to propagate to.
	_ = g.Wait()

	return result, nil
}

// ResolveBorrowRate fetches the current borrow rate for ticker from the
// provider, falling back through the three tiers in §4.6: last cached
// value, then tickerMinRate, then globalMinRate when tickerMinRate is
// itself unusable (zero or negative, e.g. a ticker seeded without its own
// minimum). It never returns an error: a mandatory-signal failure with no
// upstream fallback still resolves to one of these, with IsFallback set so
// provenance reflects the substitution.
func (r *Resolver) ResolveBorrowRate(ctx context.Context, ticker string, tickerMinRate, globalMinRate decimal.Decimal) (decimal.Decimal, domain.DataSource) {
	rate, source, err := r.borrowRate.Fetch(ctx, ticker)
	if err != nil {
		fallbackRate, ok := r.fallback.LastKnownBorrowRate(ctx, ticker)
		if !ok {
			fallbackRate = floorRate(tickerMinRate, globalMinRate)
		}
		return fallbackRate, domain.DataSource{
			SourceName: "borrow_rate_provider",
			SourceType: sourceTypeFor(ok),
			IsFallback: true,
			Timestamp:  time.Now().UTC(),
			Metadata:   map[string]string{"reason": err.Error()},
		}
	}

	parsed, parseErr := decimal.NewFromString(rate)
	if parseErr != nil {
		fallbackRate, ok := r.fallback.LastKnownBorrowRate(ctx, ticker)
		if !ok {
			fallbackRate = floorRate(tickerMinRate, globalMinRate)
		}
		return fallbackRate, domain.DataSource{
			SourceName: "borrow_rate_provider",
			SourceType: sourceTypeFor(ok),
			IsFallback: true,
			Timestamp:  time.Now().UTC(),
			Metadata:   map[string]string{"reason": parseErr.Error()},
		}
	}
	return parsed, source
}

// floorRate returns tickerMinRate unless it's zero or negative (a ticker
// seeded without a usable minimum of its own), in which case it returns
// globalMinRate — the configured fallback-of-last-resort from §4.6.
func floorRate(tickerMinRate, globalMinRate decimal.Decimal) decimal.Decimal {
	if tickerMinRate.Sign() <= 0 {
		return globalMinRate
	}
	return tickerMinRate
}

// ResolveVolatility fetches the current volatility index for ticker,
// falling back to the last cached value on failure. A total miss returns a
// nil pointer, recording absence rather than synthesizing zero.
func (r *Resolver) ResolveVolatility(ctx context.Context, ticker string) (*decimal.Decimal, domain.DataSource) {
	index, source, err := r.volatility.Fetch(ctx, ticker)
	if err != nil {
		if last, ok := r.fallback.LastKnownVolatility(ctx, ticker); ok {
			return &last, domain.DataSource{SourceName: "volatility_provider", SourceType: domain.SourceTypeCache, IsFallback: true, Timestamp: time.Now().UTC(), Metadata: map[string]string{"reason": err.Error()}}
		}
		return nil, domain.DataSource{SourceName: "volatility_provider", SourceType: domain.SourceTypeFallback, IsFallback: true, Timestamp: time.Now().UTC(), Metadata: map[string]string{"reason": err.Error()}}
	}

	parsed, parseErr := decimal.NewFromString(index)
	if parseErr != nil {
		return nil, domain.DataSource{SourceName: "volatility_provider", SourceType: domain.SourceTypeFallback, IsFallback: true, Timestamp: time.Now().UTC()}
	}
	return &parsed, source
}

// ResolveEventRisk fetches the current event-risk factor for ticker,
// falling back to the last cached value on failure. A total miss returns a
// nil pointer.
func (r *Resolver) ResolveEventRisk(ctx context.Context, ticker string) (*int, domain.DataSource) {
	factor, source, err := r.eventCalendar.Fetch(ctx, ticker)
	if err != nil {
		if last, ok := r.fallback.LastKnownEventRisk(ctx, ticker); ok {
			return &last, domain.DataSource{SourceName: "event_calendar_provider", SourceType: domain.SourceTypeCache, IsFallback: true, Timestamp: time.Now().UTC(), Metadata: map[string]string{"reason": err.Error()}}
		}
		return nil, domain.DataSource{SourceName: "event_calendar_provider", SourceType: domain.SourceTypeFallback, IsFallback: true, Timestamp: time.Now().UTC(), Metadata: map[string]string{"reason": err.Error()}}
	}
	return &factor, source
}

func sourceTypeFor(hadCachedFallback bool) domain.SourceType {
	if hadCachedFallback {
		return domain.SourceTypeCache
	}
	return domain.SourceTypeFallback
}
