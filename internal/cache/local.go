package cache

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	value   StoredValue
	expires time.Time
}

// localTier is an in-process, mutex-guarded map. It never talks to a remote
// service and is cheap enough to check before falling back to Redis.
type localTier struct {
	mu      sync.RWMutex
	entries map[string]localEntry
}

func newLocalTier() *localTier {
	return &localTier{entries: make(map[string]localEntry)}
}

func (l *localTier) get(key string) (StoredValue, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[key]
	if !ok {
		return StoredValue{}, false
	}
	if time.Now().After(e.expires) {
		return StoredValue{}, false
	}
	return e.value, true
}

func (l *localTier) set(key string, value StoredValue, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = localEntry{value: value, expires: time.Now().Add(ttl)}
}

func (l *localTier) delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *localTier) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]localEntry)
}

// Single is a Strategy backed only by the local tier — used for deployments
// without a shared Redis instance, or in tests that don't want network I/O.
type Single struct {
	tier *localTier
}

// NewSingle returns a local-only cache strategy.
func NewSingle() *Single {
	return &Single{tier: newLocalTier()}
}

func (s *Single) Get(_ context.Context, key string) (StoredValue, bool, error) {
	v, ok := s.tier.get(key)
	return v, ok, nil
}

func (s *Single) Set(_ context.Context, key string, value StoredValue, ttl time.Duration) error {
	s.tier.set(key, value, ttl)
	return nil
}

func (s *Single) Delete(_ context.Context, key string) error {
	s.tier.delete(key)
	return nil
}

func (s *Single) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Single) Flush(_ context.Context) error {
	s.tier.flush()
	return nil
}

// Null is a Strategy that never stores anything — every Get misses, every
// Set/Delete/Flush is a no-op. It lets callers disable caching without an
// if-cache-enabled branch at every call site.
type Null struct{}

// NewNull returns a no-op cache strategy.
func NewNull() *Null { return &Null{} }

func (Null) Get(context.Context, string) (StoredValue, bool, error) { return StoredValue{}, false, nil }
func (Null) Set(context.Context, string, StoredValue, time.Duration) error { return nil }
func (Null) Delete(context.Context, string) error                          { return nil }
func (Null) Exists(context.Context, string) (bool, error)                  { return false, nil }
func (Null) Flush(context.Context) error                                  { return nil }
