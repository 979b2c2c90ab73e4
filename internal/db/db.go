// Package db wraps the PostgreSQL connection pool backing broker-config
// lookups, ticker reference data, and the audit table. Grounded on the
// teacher's internal/db/db.go (pgxpool setup, circuit-breaker-wrapped
// execute, health check); the Vault-based credential path is dropped (see
// DESIGN.md) in favor of a single DSN read once at startup via
// internal/config.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Querier is the subset of pgxpool.Pool the repositories in this package
// need, so unit tests can swap in a pgxmock pool instead of a live database.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DB wraps the pgx connection pool plus a dedicated circuit breaker. Only
// operations passed to ExecuteWithCircuitBreaker go through the breaker; the
// repositories in this package and the audit sink query the pool directly.
type DB struct {
	rawPool *pgxpool.Pool
	querier Querier
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// New creates a connection pool from dsn and verifies connectivity.
func New(ctx context.Context, dsn string, poolSize int, log zerolog.Logger) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN not configured")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	cfg.MaxConns = int32(poolSize)
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	settings := gobreaker.Settings{
		Name:        "database",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures == counts.Requests
		},
	}

	return &DB{
		rawPool: pool,
		querier: pool,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log.With().Str("component", "db").Logger(),
	}, nil
}

// NewWithQuerier wraps an already-open Querier (real or mocked) without
// going through connection setup — used by tests wiring a pgxmock pool.
func NewWithQuerier(querier Querier, log zerolog.Logger) *DB {
	settings := gobreaker.Settings{Name: "database"}
	return &DB{
		querier: querier,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log.With().Str("component", "db").Logger(),
	}
}

// Close closes the underlying connection pool.
func (db *DB) Close() {
	if db.rawPool != nil {
		db.rawPool.Close()
	}
}

// Pool returns the query interface backing the repositories in this
// package.
func (db *DB) Pool() Querier { return db.querier }

// RawPool returns the concrete pgx pool, for callers (the audit sink) that
// need pgxpool-specific behavior rather than the narrow Querier interface.
func (db *DB) RawPool() *pgxpool.Pool { return db.rawPool }

// Health checks database connectivity.
func (db *DB) Health(ctx context.Context) error {
	if db.rawPool == nil {
		return nil
	}
	return db.rawPool.Ping(ctx)
}

// ExecuteWithCircuitBreaker runs operation through the database breaker so a
// string of failed queries trips the breaker and fails fast instead of
// piling up slow timeouts, mirroring the teacher's
// DB.ExecuteWithCircuitBreaker pattern.
func (db *DB) ExecuteWithCircuitBreaker(operation func() (interface{}, error)) (interface{}, error) {
	result, err := db.breaker.Execute(operation)
	if err == gobreaker.ErrOpenState {
		return nil, fmt.Errorf("database circuit breaker is open: %w", err)
	}
	return result, err
}

// BreakerState reports the current database breaker state.
func (db *DB) BreakerState() gobreaker.State {
	return db.breaker.State()
}
