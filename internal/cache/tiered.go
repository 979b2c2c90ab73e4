package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Tiered is the production Strategy: local tier first, remote Redis tier
// second, write-through on Set. A remote hit is promoted into the local
// tier so the next lookup for the same key never leaves the process. A
// remote outage degrades the cache to local-only instead of failing the
// calculation — callers fall back further upstream (stale value, then
// ticker minimum) per the provider's own fallback policy.
type Tiered struct {
	local  *localTier
	remote *remoteTier
	log    zerolog.Logger
}

// NewTiered builds a two-tier cache over an existing Redis client.
func NewTiered(client *redis.Client, log zerolog.Logger) *Tiered {
	return &Tiered{local: newLocalTier(), remote: newRemoteTier(client), log: log.With().Str("component", "cache").Logger()}
}

func (t *Tiered) Get(ctx context.Context, key string) (StoredValue, bool, error) {
	if v, ok := t.local.get(key); ok {
		return v, true, nil
	}

	v, ok, err := t.remote.get(ctx, key)
	if err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("remote cache tier degraded, serving local-only")
		return StoredValue{}, false, nil
	}
	if !ok {
		return StoredValue{}, false, nil
	}

	// Promote into the local tier with the key's remaining Redis TTL (the
	// prefix's standard TTL when Redis reports none) so a warm value doesn't
	// need another Redis round trip immediately.
	ttl := TTLFor(prefixOf(key))
	ttlCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	remaining, ttlErr := t.remote.client.TTL(ttlCtx, t.remote.buildKey(key)).Result()
	cancel()
	if ttlErr == nil && remaining > 0 {
		ttl = remaining
	}
	t.local.set(key, v, ttl)
	return v, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value StoredValue, ttl time.Duration) error {
	t.local.set(key, value, ttl)
	if err := t.remote.set(ctx, key, value, ttl); err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("remote cache write failed, local tier still holds value")
	}
	return nil
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	t.local.delete(key)
	if err := t.remote.delete(ctx, key); err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("remote cache delete failed")
	}
	return nil
}

func (t *Tiered) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := t.Get(ctx, key)
	return ok, err
}

func (t *Tiered) Flush(ctx context.Context) error {
	t.local.flush()
	if err := t.remote.flush(ctx); err != nil {
		t.log.Warn().Err(err).Msg("remote cache flush failed")
	}
	return nil
}

// RemoteHealthy reports whether the secondary tier is currently reachable.
func (t *Tiered) RemoteHealthy(ctx context.Context) bool {
	return t.remote.healthy(ctx)
}

// prefixOf extracts the leading key-prefix segment (before the first colon)
// so a promoted value gets the right TTL without the caller threading it
// through every Get call.
func prefixOf(key string) KeyPrefix {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return KeyPrefix(key[:i])
		}
	}
	return KeyPrefix(key)
}
