package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_Record_PersistsOnSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := sampleRecord()
	mock.ExpectExec("INSERT INTO locate_audit").
		WithArgs(
			rec.AuditID, rec.Timestamp, rec.Ticker, rec.PositionValue, rec.LoanDays, rec.ClientID,
			rec.Result.TotalFee, rec.Result.Breakdown.BorrowCost, rec.Result.Breakdown.Markup, rec.Result.Breakdown.TransactionFees,
			rec.Result.BorrowRateUsed, rec.Result.BaseBorrowRate, nullableDecimal(rec.Result.VolatilityAdjustment), nullableDecimal(rec.Result.EventRiskAdjustment),
			rec.Result.AnnualizedRate, rec.Result.TimeFactor, pgxmock.AnyArg(), rec.CorrelationID, rec.RequestID, rec.UserAgent, rec.IP,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sink := NewSink(mock, nil, zerolog.Nop())
	apiErr := sink.Record(context.Background(), rec)

	assert.Nil(t, apiErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_Record_SpoolsOnDatabaseFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO locate_audit").WillReturnError(assert.AnError)

	spoolPath := filepath.Join(t.TempDir(), "spool.jsonl")
	spool, err := NewSpool(spoolPath, 10)
	require.NoError(t, err)

	sink := NewSink(mock, spool, zerolog.Nop())
	rec := sampleRecord()
	apiErr := sink.Record(context.Background(), rec)

	require.NotNil(t, apiErr)
	assert.Equal(t, "AUDIT_PERSISTENCE_ERROR", apiErr.Code)

	n, err := spool.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_Record_FailsWhenSpoolAlsoUnavailable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO locate_audit").WillReturnError(assert.AnError)

	sink := NewSink(mock, nil, zerolog.Nop())
	apiErr := sink.Record(context.Background(), sampleRecord())

	require.NotNil(t, apiErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_ByAuditID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := sampleRecord()
	rows := pgxmock.NewRows([]string{
		"audit_id", "timestamp", "ticker", "position_value", "loan_days", "client_id",
		"total_fee", "borrow_cost", "markup", "transaction_fees",
		"borrow_rate_used", "base_borrow_rate", "volatility_adjustment", "event_risk_adjustment",
		"annualized_rate", "time_factor", "data_sources", "correlation_id", "request_id", "user_agent", "ip",
	}).AddRow(
		rec.AuditID, rec.Timestamp, rec.Ticker, rec.PositionValue, rec.LoanDays, rec.ClientID,
		rec.Result.TotalFee, rec.Result.Breakdown.BorrowCost, rec.Result.Breakdown.Markup, rec.Result.Breakdown.TransactionFees,
		rec.Result.BorrowRateUsed, rec.Result.BaseBorrowRate, nil, nil,
		rec.Result.AnnualizedRate, rec.Result.TimeFactor, []byte(`[{"source_name":"borrow_rate_provider","source_type":"api"}]`),
		rec.CorrelationID, rec.RequestID, rec.UserAgent, rec.IP,
	)

	mock.ExpectQuery("SELECT audit_id, timestamp").
		WithArgs(rec.AuditID.String()).
		WillReturnRows(rows)

	sink := NewSink(mock, nil, zerolog.Nop())
	got, err := sink.ByAuditID(context.Background(), rec.AuditID.String())

	require.NoError(t, err)
	assert.Equal(t, rec.AuditID, got.AuditID)
	assert.Equal(t, rec.Ticker, got.Ticker)
	require.Len(t, got.DataSources, 1)
	assert.Equal(t, "borrow_rate_provider", got.DataSources[0].SourceName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_Query_AppliesFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"audit_id", "timestamp", "ticker", "position_value", "loan_days", "client_id",
		"total_fee", "borrow_cost", "markup", "transaction_fees",
		"borrow_rate_used", "base_borrow_rate", "volatility_adjustment", "event_risk_adjustment",
		"annualized_rate", "time_factor", "data_sources", "correlation_id", "request_id", "user_agent", "ip",
	})

	mock.ExpectQuery("SELECT audit_id, timestamp").
		WithArgs("client123", 50, 0).
		WillReturnRows(rows)

	sink := NewSink(mock, nil, zerolog.Nop())
	records, err := sink.Query(context.Background(), QueryFilters{ClientID: "client123"})

	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}
