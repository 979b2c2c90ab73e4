package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

func sampleRecord() domain.AuditRecord {
	return domain.AuditRecord{
		AuditID:       uuid.New(),
		Timestamp:     time.Now().UTC(),
		Ticker:        "AAPL",
		PositionValue: decimal.NewFromInt(100000),
		LoanDays:      30,
		ClientID:      "client123",
		Result: domain.CalculationResult{
			TotalFee:       decimal.NewFromFloat(672.26),
			BorrowRateUsed: decimal.NewFromFloat(0.075),
		},
		DataSources: []domain.DataSource{
			{SourceName: "borrow_rate_provider", SourceType: domain.SourceTypeAPI},
		},
		CorrelationID: "corr-1",
	}
}

func TestSpool_WriteThenDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.jsonl")
	spool, err := NewSpool(path, 10)
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, spool.Write(rec))

	n, err := spool.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	drained, err := spool.Drain()
	require.NoError(t, err)
	require.Len(t, drained, 1)
	assert.Equal(t, rec.AuditID, drained[0].AuditID)
	assert.Equal(t, rec.Ticker, drained[0].Ticker)

	n2, err := spool.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n2)
}

func TestSpool_RefusesWritesWhenFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.jsonl")
	spool, err := NewSpool(path, 2)
	require.NoError(t, err)

	require.NoError(t, spool.Write(sampleRecord()))
	require.NoError(t, spool.Write(sampleRecord()))

	err = spool.Write(sampleRecord())
	assert.Error(t, err)
}
