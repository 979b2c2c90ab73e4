package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// remoteTier wraps a Redis client with nil-receiver-safe, short-timeout
// operations, adapted from the teacher's RedisPriceCache: every call gets
// its own bounded deadline so a slow or unreachable Redis never stalls a
// pricing request.
type remoteTier struct {
	client *redis.Client
	prefix string
}

func newRemoteTier(client *redis.Client) *remoteTier {
	return &remoteTier{client: client, prefix: "locatefee:cache:"}
}

func (r *remoteTier) buildKey(key string) string {
	return r.prefix + key
}

func (r *remoteTier) get(ctx context.Context, key string) (StoredValue, bool, error) {
	if r == nil || r.client == nil {
		return StoredValue{}, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := r.client.Get(ctx, r.buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StoredValue{}, false, nil
	}
	if err != nil {
		return StoredValue{}, false, err
	}
	v, err := decode(raw)
	if err != nil {
		return StoredValue{}, false, err
	}
	return v, true, nil
}

func (r *remoteTier) set(ctx context.Context, key string, value StoredValue, ttl time.Duration) error {
	if r == nil || r.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	payload, err := encode(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.buildKey(key), payload, ttl).Err()
}

func (r *remoteTier) delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return r.client.Del(ctx, r.buildKey(key)).Err()
}

func (r *remoteTier) flush(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *remoteTier) healthy(ctx context.Context) bool {
	if r == nil || r.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err() == nil
}
