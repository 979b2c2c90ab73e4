package coordinator

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/galatea-associates/locate-fee-engine/internal/cache"
)

// CacheFallback adapts a cache.Strategy into externaldata.FallbackSource,
// letting the Resolver fall back to a widened-window stale value (borrow
// rate) or the plain last-cached value (volatility, event risk) without
// depending on the coordinator package directly.
type CacheFallback struct {
	cache cache.Strategy
}

// NewCacheFallback builds a CacheFallback over strategy.
func NewCacheFallback(strategy cache.Strategy) *CacheFallback {
	return &CacheFallback{cache: strategy}
}

// LastKnownBorrowRate reads the widened-staleness-window shadow key
// maintained by resolveBorrowRate whenever a genuinely fresh rate is
// resolved, per §4.6's "cached stale value within a widened staleness
// window" fallback step.
func (f *CacheFallback) LastKnownBorrowRate(ctx context.Context, ticker string) (decimal.Decimal, bool) {
	v, ok, err := f.cache.Get(ctx, staleBorrowRateKey(ticker))
	if err != nil || !ok {
		return decimal.Decimal{}, false
	}
	d, perr := decimal.NewFromString(v.Value)
	if perr != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// LastKnownVolatility reads the plain volatility cache key; per §4.6,
// volatility has no widened window of its own.
func (f *CacheFallback) LastKnownVolatility(ctx context.Context, ticker string) (decimal.Decimal, bool) {
	v, ok, err := f.cache.Get(ctx, keyFor(cache.PrefixVolatility, ticker))
	if err != nil || !ok {
		return decimal.Decimal{}, false
	}
	d, perr := decimal.NewFromString(v.Value)
	if perr != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// LastKnownEventRisk reads the plain event-risk cache key.
func (f *CacheFallback) LastKnownEventRisk(ctx context.Context, ticker string) (int, bool) {
	v, ok, err := f.cache.Get(ctx, keyFor(cache.PrefixEventRisk, ticker))
	if err != nil || !ok {
		return 0, false
	}
	n, perr := strconv.Atoi(v.Value)
	if perr != nil {
		return 0, false
	}
	return n, true
}
