package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/galatea-associates/locate-fee-engine/internal/apierr"
)

// APIKeyStore holds the fixed, configured set of valid API keys, per §6:
// "checked against a fixed configured set (not a database-backed key
// store — that remains out of scope per Non-goals)". Grounded on the
// teacher's internal/api/auth_middleware.go APIKeyStore, trimmed from a
// Postgres-backed lookup to an in-memory set.
type APIKeyStore struct {
	keys map[string]struct{}
}

// NewAPIKeyStore builds a store from the configured key list. An empty list
// disables authentication entirely, matching the teacher's "disabled by
// default for development" posture.
func NewAPIKeyStore(keys []string) *APIKeyStore {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return &APIKeyStore{keys: set}
}

func (s *APIKeyStore) enabled() bool { return len(s.keys) > 0 }

func (s *APIKeyStore) valid(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// AuthMiddleware validates the X-API-Key header (or an Authorization:
// Bearer fallback) against the fixed key set, per §6. When no keys are
// configured, auth is a no-op — mirrors the teacher's disabled-by-default
// AuthMiddleware behavior.
func AuthMiddleware(store *APIKeyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !store.enabled() {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" || !store.valid(key) {
			writeAPIError(c, apierr.Unauthorized().WithCorrelationID(correlationID(c)))
			c.Abort()
			return
		}

		c.Next()
	}
}

// rateLimiterEntry tracks one IP's request timestamps within the current
// sliding window.
type rateLimiterEntry struct {
	mu       sync.Mutex
	requests []time.Time
}

// slidingWindowLimiter implements per-IP sliding-window rate limiting,
// grounded on the teacher's cmd/api/middleware.go RateLimiter (sync.Map of
// per-IP entries, trimmed-on-check expiry).
type slidingWindowLimiter struct {
	entries     sync.Map
	maxRequests int
	window      time.Duration
}

func newSlidingWindowLimiter(maxRequests int, window time.Duration) *slidingWindowLimiter {
	return &slidingWindowLimiter{maxRequests: maxRequests, window: window}
}

type limitCheck struct {
	allowed   bool
	limit     int
	remaining int
	resetAt   time.Time
}

func (l *slidingWindowLimiter) check(ip string) limitCheck {
	now := time.Now()
	val, _ := l.entries.LoadOrStore(ip, &rateLimiterEntry{})
	entry := val.(*rateLimiterEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	cutoff := now.Add(-l.window)
	valid := entry.requests[:0]
	var oldest time.Time
	for _, t := range entry.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
			if oldest.IsZero() || t.Before(oldest) {
				oldest = t
			}
		}
	}
	entry.requests = valid

	resetAt := now.Add(l.window)
	if !oldest.IsZero() {
		resetAt = oldest.Add(l.window)
	}

	if len(entry.requests) >= l.maxRequests {
		return limitCheck{allowed: false, limit: l.maxRequests, remaining: 0, resetAt: resetAt}
	}

	entry.requests = append(entry.requests, now)
	return limitCheck{allowed: true, limit: l.maxRequests, remaining: l.maxRequests - len(entry.requests), resetAt: resetAt}
}

func (l *slidingWindowLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := l.check(c.ClientIP())

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", info.limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", info.remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", info.resetAt.Unix()))

		if !info.allowed {
			retryAfter := int(time.Until(info.resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			writeError(c, http.StatusTooManyRequests, "RATE_LIMITED", "request rate exceeded", fmt.Sprintf("retry_after=%d", retryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimiterMiddleware groups the two endpoint-class limiters named in §6:
// calculate (the write-heavy pricing endpoint) and read (diagnostics).
type RateLimiterMiddleware struct {
	enabled   bool
	calculate *slidingWindowLimiter
	read      *slidingWindowLimiter
}

// NewRateLimiterMiddleware builds both limiter classes. When enabled is
// false, both middlewares are no-ops.
func NewRateLimiterMiddleware(enabled bool, calcMax int, calcWindow time.Duration, readMax int, readWindow time.Duration) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		enabled:   enabled,
		calculate: newSlidingWindowLimiter(calcMax, calcWindow),
		read:      newSlidingWindowLimiter(readMax, readWindow),
	}
}

// CalculateMiddleware returns the limiter for POST /calculate-locate.
func (m *RateLimiterMiddleware) CalculateMiddleware() gin.HandlerFunc {
	if !m.enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return m.calculate.middleware()
}

// ReadMiddleware returns the limiter for GET /rates/{ticker}.
func (m *RateLimiterMiddleware) ReadMiddleware() gin.HandlerFunc {
	if !m.enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return m.read.middleware()
}
