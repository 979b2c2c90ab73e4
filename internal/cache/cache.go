// Package cache implements the two-tier (local + shared Redis) cache from
// §4.3: a local in-process tier backed by sync.RWMutex, a shared remote tier
// backed by github.com/redis/go-redis/v9, write-through semantics, and
// graceful degradation when the remote tier is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// StoredValue wraps a cached payload with the provenance the consumer needs
// to tell a live value from a stale one promoted back from the secondary
// tier. Mirrors the teacher's PriceCacheEntry wrapper-struct pattern.
type StoredValue struct {
	Value     string    `json:"value"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// KeyPrefix identifies the category of a cache key, which determines its TTL.
type KeyPrefix string

const (
	PrefixBorrowRate   KeyPrefix = "borrow_rate"
	PrefixVolatility   KeyPrefix = "volatility"
	PrefixEventRisk    KeyPrefix = "event_risk"
	PrefixBrokerConfig KeyPrefix = "broker_config"
	PrefixCalculation  KeyPrefix = "calculation"
)

// TTLFor returns the configured TTL for a key prefix, per §4.3's TTL table.
func TTLFor(prefix KeyPrefix) time.Duration {
	switch prefix {
	case PrefixBorrowRate:
		return 5 * time.Minute
	case PrefixVolatility:
		return 15 * time.Minute
	case PrefixEventRisk:
		return time.Hour
	case PrefixBrokerConfig:
		return 30 * time.Minute
	case PrefixCalculation:
		return time.Minute
	default:
		return 5 * time.Minute
	}
}

// Strategy is the capability set every cache tier configuration exposes.
// Single, Tiered, and Null are the three concrete variants; callers never
// need a fourth, so this stays a closed set rather than an extension point.
type Strategy interface {
	Get(ctx context.Context, key string) (StoredValue, bool, error)
	Set(ctx context.Context, key string, value StoredValue, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
}

func encode(v StoredValue) ([]byte, error) { return json.Marshal(v) }

func decode(b []byte) (StoredValue, error) {
	var v StoredValue
	err := json.Unmarshal(b, &v)
	return v, err
}
