// Package audit implements the AuditSink of §4.5: an append-only,
// immutable record of every finished calculation, with provenance for
// regulatory retention. Grounded on the teacher's internal/audit/audit.go
// almost directly — Logger becomes Sink, Event becomes domain.AuditRecord,
// QueryFilters is kept nearly as-is. The teacher's single-digit `$N`
// placeholder builder (`string(rune('0'+argPos))`, valid only up to 9
// parameters) is replaced here with fmt.Sprintf("$%d", n), a correctness
// fix rather than a style choice.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/galatea-associates/locate-fee-engine/internal/apierr"
	"github.com/galatea-associates/locate-fee-engine/internal/domain"
	"github.com/galatea-associates/locate-fee-engine/internal/metrics"
)

// Pool is the subset of pgxpool.Pool this package needs, so tests can swap
// in a pgxmock pool without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Sink accepts finished calculations and persists one AuditRecord per
// calculation. Persistence failure never surfaces to the calculation's
// caller: the record is spooled to disk for later replay instead.
type Sink struct {
	pool  Pool
	spool *Spool
	log   zerolog.Logger
}

// NewSink builds a Sink over a Pool (real or mocked) and a bounded disk
// spool. pool may be nil in tests that only exercise the spool path.
func NewSink(pool Pool, spool *Spool, log zerolog.Logger) *Sink {
	return &Sink{pool: pool, spool: spool, log: log.With().Str("component", "audit").Logger()}
}

// NewSinkWithPool is the production constructor over a live pgxpool.Pool.
func NewSinkWithPool(pool *pgxpool.Pool, spool *Spool, log zerolog.Logger) *Sink {
	return NewSink(pool, spool, log)
}

// Record appends one AuditRecord. Its state machine is NEW -> PERSISTED on
// success, or NEW -> BUFFERED (spooled) / NEW -> FAILED if both the database
// write and the spool write fail. The returned error is always an
// apierr.Error of kind AuditPersistenceError; callers must still return the
// computed result to the user per §4.5 — this error is for internal alarms
// only.
func (s *Sink) Record(ctx context.Context, rec domain.AuditRecord) *apierr.Error {
	if s.pool != nil {
		if err := s.persist(ctx, rec); err != nil {
			s.log.Error().Err(err).Str("audit_id", rec.AuditID.String()).Msg("audit persist failed, spooling to disk")
		} else {
			metrics.RecordAuditOutcome(string(domain.AuditStatePersisted))
			return nil
		}
	}

	if s.spool != nil {
		if err := s.spool.Write(rec); err != nil {
			s.log.Error().Err(err).Str("audit_id", rec.AuditID.String()).Msg("audit spool write failed")
		} else {
			metrics.RecordAuditOutcome(string(domain.AuditStateBuffered))
			return apierr.AuditPersistence(fmt.Errorf("database unavailable, record buffered for replay"))
		}
	}

	metrics.RecordAuditOutcome(string(domain.AuditStateFailed))
	return apierr.AuditPersistence(fmt.Errorf("audit record could not be persisted or spooled"))
}

const insertQuery = `
	INSERT INTO locate_audit (
		audit_id, timestamp, ticker, position_value, loan_days, client_id,
		total_fee, borrow_cost, markup, transaction_fees,
		borrow_rate_used, base_borrow_rate, volatility_adjustment, event_risk_adjustment,
		annualized_rate, time_factor, data_sources, correlation_id, request_id, user_agent, ip
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
	)
`

func (s *Sink) persist(ctx context.Context, rec domain.AuditRecord) error {
	sources, err := json.Marshal(rec.DataSources)
	if err != nil {
		return fmt.Errorf("marshal data_sources: %w", err)
	}

	_, err = s.pool.Exec(ctx, insertQuery,
		rec.AuditID,
		rec.Timestamp,
		rec.Ticker,
		rec.PositionValue,
		rec.LoanDays,
		rec.ClientID,
		rec.Result.TotalFee,
		rec.Result.Breakdown.BorrowCost,
		rec.Result.Breakdown.Markup,
		rec.Result.Breakdown.TransactionFees,
		rec.Result.BorrowRateUsed,
		rec.Result.BaseBorrowRate,
		nullableDecimal(rec.Result.VolatilityAdjustment),
		nullableDecimal(rec.Result.EventRiskAdjustment),
		rec.Result.AnnualizedRate,
		rec.Result.TimeFactor,
		sources,
		rec.CorrelationID,
		rec.RequestID,
		rec.UserAgent,
		rec.IP,
	)
	return err
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

// QueryFilters narrows a compliance query over persisted audit records, per
// §4.5's {client_id?, ticker?, timestamp range?, position_value range?,
// rate range?} filter set plus pagination.
type QueryFilters struct {
	ClientID          string
	Ticker            string
	StartTime         time.Time
	EndTime           time.Time
	MinPositionValue  *decimal.Decimal
	MaxPositionValue  *decimal.Decimal
	MinRate           *decimal.Decimal
	MaxRate           *decimal.Decimal
	OnlyFallback      bool
	Page              int
	PageSize          int
}

// Normalize applies the documented pagination defaults (page 1, page size
// 50, max page size 100).
func (f *QueryFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 50
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// Query fetches audit records matching filters, newest first.
func (s *Sink) Query(ctx context.Context, filters QueryFilters) ([]domain.AuditRecord, error) {
	filters.Normalize()

	query := `
		SELECT audit_id, timestamp, ticker, position_value, loan_days, client_id,
		       total_fee, borrow_cost, markup, transaction_fees,
		       borrow_rate_used, base_borrow_rate, volatility_adjustment, event_risk_adjustment,
		       annualized_rate, time_factor, data_sources, correlation_id, request_id, user_agent, ip
		FROM locate_audit
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1

	add := func(clause string, value interface{}) {
		query += fmt.Sprintf(" AND %s $%d", clause, argPos)
		args = append(args, value)
		argPos++
	}

	if filters.ClientID != "" {
		add("client_id =", filters.ClientID)
	}
	if filters.Ticker != "" {
		add("ticker =", filters.Ticker)
	}
	if !filters.StartTime.IsZero() {
		add("timestamp >=", filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		add("timestamp <=", filters.EndTime)
	}
	if filters.MinPositionValue != nil {
		add("position_value >=", *filters.MinPositionValue)
	}
	if filters.MaxPositionValue != nil {
		add("position_value <=", *filters.MaxPositionValue)
	}
	if filters.MinRate != nil {
		add("borrow_rate_used >=", *filters.MinRate)
	}
	if filters.MaxRate != nil {
		add("borrow_rate_used <=", *filters.MaxRate)
	}
	if filters.OnlyFallback {
		query += ` AND data_sources::text LIKE '%"is_fallback":true%'`
	}

	query += ` ORDER BY timestamp DESC`
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// rowScanner is the subset of pgx.Rows this package needs, so scanRecord can
// be exercised against both real rows and a pgxmock row set in tests.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var sourcesJSON []byte
	var volAdj, eventAdj *decimal.Decimal

	err := row.Scan(
		&rec.AuditID,
		&rec.Timestamp,
		&rec.Ticker,
		&rec.PositionValue,
		&rec.LoanDays,
		&rec.ClientID,
		&rec.Result.TotalFee,
		&rec.Result.Breakdown.BorrowCost,
		&rec.Result.Breakdown.Markup,
		&rec.Result.Breakdown.TransactionFees,
		&rec.Result.BorrowRateUsed,
		&rec.Result.BaseBorrowRate,
		&volAdj,
		&eventAdj,
		&rec.Result.AnnualizedRate,
		&rec.Result.TimeFactor,
		&sourcesJSON,
		&rec.CorrelationID,
		&rec.RequestID,
		&rec.UserAgent,
		&rec.IP,
	)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("scan audit record: %w", err)
	}

	rec.Result.VolatilityAdjustment = volAdj
	rec.Result.EventRiskAdjustment = eventAdj

	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &rec.DataSources); err != nil {
			return domain.AuditRecord{}, fmt.Errorf("unmarshal data_sources: %w", err)
		}
	}

	return rec, nil
}

// ByAuditID fetches a single record by its audit_id.
func (s *Sink) ByAuditID(ctx context.Context, auditID string) (domain.AuditRecord, error) {
	const query = `
		SELECT audit_id, timestamp, ticker, position_value, loan_days, client_id,
		       total_fee, borrow_cost, markup, transaction_fees,
		       borrow_rate_used, base_borrow_rate, volatility_adjustment, event_risk_adjustment,
		       annualized_rate, time_factor, data_sources, correlation_id, request_id, user_agent, ip
		FROM locate_audit
		WHERE audit_id = $1
	`
	row := s.pool.QueryRow(ctx, query, auditID)
	return scanRecord(row)
}
