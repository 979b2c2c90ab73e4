package coordinator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/galatea-associates/locate-fee-engine/internal/cache"
	"github.com/galatea-associates/locate-fee-engine/internal/domain"
	"github.com/galatea-associates/locate-fee-engine/internal/metrics"
)

// keyFor builds a colon-separated, prefix-led cache key per §4.3's key
// discipline: "<prefix>:<part>[:<part>...]".
func keyFor(prefix cache.KeyPrefix, parts ...string) string {
	return string(prefix) + ":" + strings.Join(parts, ":")
}

// staleBorrowRateKey is the shadow key holding the last known-good (never
// fallback) borrow rate, written with an extended TTL so the fallback chain
// in §4.6 has a "cached stale value within a widened staleness window" to
// prefer over the ticker's bare minimum rate.
func staleBorrowRateKey(ticker string) string {
	return "borrow_rate:stale:" + ticker
}

// resolveRateContext resolves base rate, volatility, and event risk
// concurrently, checking the cache before calling the provider for each
// signal independently — a signal that's warm in cache never reaches the
// resolver at all, per §4.6's "cache -> provider -> fallback" order.
func (c *Coordinator) resolveRateContext(ctx context.Context, ticker domain.Ticker) domain.RateContext {
	var rc domain.RateContext

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rc.BaseRate, rc.BaseRateSource = c.resolveBorrowRate(gctx, ticker)
		return nil
	})
	g.Go(func() error {
		rc.VolatilityIndex, rc.VolatilitySource = c.resolveVolatility(gctx, ticker.Symbol)
		return nil
	})
	g.Go(func() error {
		rc.EventRiskFactor, rc.EventRiskSource = c.resolveEventRisk(gctx, ticker.Symbol)
		return nil
	})
	_ = g.Wait()

	return rc
}

func (c *Coordinator) resolveBorrowRate(ctx context.Context, ticker domain.Ticker) (decimal.Decimal, domain.DataSource) {
	key := keyFor(cache.PrefixBorrowRate, ticker.Symbol)

	if v, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		if d, perr := decimal.NewFromString(v.Value); perr == nil {
			metrics.RecordCacheOp(string(cache.PrefixBorrowRate), true)
			return d, domain.DataSource{SourceName: v.Source, SourceType: domain.SourceTypeCache, Timestamp: v.Timestamp}
		}
	}
	metrics.RecordCacheOp(string(cache.PrefixBorrowRate), false)

	rate, source := c.resolver.ResolveBorrowRate(ctx, ticker.Symbol, ticker.MinBorrowRate, c.globalMinBorrowRate)
	if !source.IsFallback {
		ttl := cache.TTLFor(cache.PrefixBorrowRate)
		c.cacheWriteThrough(ctx, key, rate.String(), source.SourceName, ttl)
		c.cacheWriteThrough(ctx, staleBorrowRateKey(ticker.Symbol), rate.String(), source.SourceName, ttl*time.Duration(c.stalenessMultiplier))
	}
	return rate, source
}

func (c *Coordinator) resolveVolatility(ctx context.Context, ticker string) (*decimal.Decimal, domain.DataSource) {
	key := keyFor(cache.PrefixVolatility, ticker)

	if v, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		if d, perr := decimal.NewFromString(v.Value); perr == nil {
			metrics.RecordCacheOp(string(cache.PrefixVolatility), true)
			return &d, domain.DataSource{SourceName: v.Source, SourceType: domain.SourceTypeCache, Timestamp: v.Timestamp}
		}
	}
	metrics.RecordCacheOp(string(cache.PrefixVolatility), false)

	index, source := c.resolver.ResolveVolatility(ctx, ticker)
	if index != nil && !source.IsFallback {
		c.cacheWriteThrough(ctx, key, index.String(), source.SourceName, cache.TTLFor(cache.PrefixVolatility))
	}
	return index, source
}

func (c *Coordinator) resolveEventRisk(ctx context.Context, ticker string) (*int, domain.DataSource) {
	key := keyFor(cache.PrefixEventRisk, ticker)

	if v, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		if n, perr := strconv.Atoi(v.Value); perr == nil {
			metrics.RecordCacheOp(string(cache.PrefixEventRisk), true)
			return &n, domain.DataSource{SourceName: v.Source, SourceType: domain.SourceTypeCache, Timestamp: v.Timestamp}
		}
	}
	metrics.RecordCacheOp(string(cache.PrefixEventRisk), false)

	factor, source := c.resolver.ResolveEventRisk(ctx, ticker)
	if factor != nil && !source.IsFallback {
		c.cacheWriteThrough(ctx, key, strconv.Itoa(*factor), source.SourceName, cache.TTLFor(cache.PrefixEventRisk))
	}
	return factor, source
}
