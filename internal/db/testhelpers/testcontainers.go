// Package testhelpers spins up a disposable PostgreSQL instance for
// integration tests against the broker_config/ticker/locate_audit schema.
// Grounded on the teacher's internal/db/testhelpers/testcontainers.go
// (testcontainers-go postgres module, wait strategy, pool setup); the
// TimescaleDB/pgvector image and the crypto-trading schema are replaced
// with a plain postgres image and this system's three tables.
package testhelpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/galatea-associates/locate-fee-engine/internal/db"
)

// PostgresContainer holds the testcontainer instance and connection details.
type PostgresContainer struct {
	Container     *postgres.PostgresContainer
	ConnectionStr string
	DB            *db.DB
	rawPool       *pgxpool.Pool
	cleanupFuncs  []func()
	t             *testing.T
}

// SetupTestDatabase creates a disposable PostgreSQL container and an open
// pool against it. The schema is not applied here; call ApplyMigrations or
// ApplyMigrationsLegacy on the result.
func SetupTestDatabase(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("locatefee_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to parse connection string: %v", err)
	}
	cfg.MaxConns = 5
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("failed to ping database: %v", err)
	}

	tc := &PostgresContainer{
		Container:     container,
		ConnectionStr: connStr,
		DB:            db.NewWithQuerier(pool, zerolog.Nop()),
		rawPool:       pool,
		cleanupFuncs:  []func(){},
		t:             t,
	}

	t.Cleanup(tc.Cleanup)
	return tc
}

// ApplyMigrations runs every *.sql file under migrationsPath, in filename
// order, against the container.
func (tc *PostgresContainer) ApplyMigrations(migrationsPath string) error {
	tc.t.Helper()
	ctx := context.Background()

	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migration files: %w", err)
	}
	sort.Strings(files)

	for _, migrationFile := range files {
		tc.t.Logf("applying migration: %s", filepath.Base(migrationFile))

		sqlBytes, err := os.ReadFile(migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationFile, err)
		}
		if _, err := tc.rawPool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", filepath.Base(migrationFile), err)
		}
	}
	return nil
}

// ApplyMigrationsLegacy provides the locate-fee schema directly, for tests
// run without a migrations directory on disk.
func (tc *PostgresContainer) ApplyMigrationsLegacy() error {
	tc.t.Helper()
	ctx := context.Background()

	const schema = `
CREATE TABLE IF NOT EXISTS ticker (
    symbol TEXT PRIMARY KEY,
    min_borrow_rate NUMERIC(10, 6) NOT NULL,
    lender_api_id TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS broker_config (
    client_id TEXT PRIMARY KEY,
    markup_percentage NUMERIC(10, 6) NOT NULL,
    transaction_fee_type TEXT NOT NULL,
    transaction_amount NUMERIC(20, 6) NOT NULL,
    active BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS locate_audit (
    audit_id UUID PRIMARY KEY,
    timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    ticker TEXT NOT NULL,
    position_value NUMERIC(20, 6) NOT NULL,
    loan_days INTEGER NOT NULL,
    client_id TEXT NOT NULL,
    total_fee NUMERIC(20, 6) NOT NULL,
    borrow_cost NUMERIC(20, 6) NOT NULL,
    markup NUMERIC(20, 6) NOT NULL,
    transaction_fees NUMERIC(20, 6) NOT NULL,
    borrow_rate_used NUMERIC(10, 6) NOT NULL,
    base_borrow_rate NUMERIC(10, 6) NOT NULL,
    volatility_adjustment NUMERIC(10, 6),
    event_risk_adjustment NUMERIC(10, 6),
    annualized_rate NUMERIC(10, 6) NOT NULL,
    time_factor NUMERIC(10, 6) NOT NULL,
    data_sources JSONB NOT NULL,
    correlation_id TEXT NOT NULL,
    request_id TEXT,
    user_agent TEXT,
    ip TEXT,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_locate_audit_client_id ON locate_audit(client_id);
CREATE INDEX IF NOT EXISTS idx_locate_audit_ticker ON locate_audit(ticker);
CREATE INDEX IF NOT EXISTS idx_locate_audit_timestamp ON locate_audit(timestamp DESC);
`

	_, err := tc.rawPool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to apply legacy schema: %w", err)
	}
	return nil
}

// AddCleanup registers a cleanup function to be called during teardown.
func (tc *PostgresContainer) AddCleanup(fn func()) {
	tc.cleanupFuncs = append(tc.cleanupFuncs, fn)
}

// Cleanup terminates the container and runs cleanup functions, in reverse
// registration order.
func (tc *PostgresContainer) Cleanup() {
	ctx := context.Background()

	for i := len(tc.cleanupFuncs) - 1; i >= 0; i-- {
		tc.cleanupFuncs[i]()
	}

	if tc.DB != nil {
		tc.DB.Close()
	}
	if tc.Container != nil {
		if err := tc.Container.Terminate(ctx); err != nil {
			tc.t.Logf("failed to terminate container: %v", err)
		}
	}
}

// TruncateAllTables clears every row from the locate-fee tables, for test
// isolation between cases sharing one container.
func (tc *PostgresContainer) TruncateAllTables() error {
	ctx := context.Background()

	tables := []string{"locate_audit", "broker_config", "ticker"}
	for _, table := range tables {
		if _, err := tc.rawPool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}

// ExecuteSQL runs arbitrary SQL against the container, for test setup.
func (tc *PostgresContainer) ExecuteSQL(sql string) error {
	ctx := context.Background()
	_, err := tc.rawPool.Exec(ctx, sql)
	return err
}
