package audit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

func recordWithRate(rate decimal.Decimal, fallback bool, sourceName string) domain.AuditRecord {
	r := sampleRecord()
	r.Result.BorrowRateUsed = rate
	r.DataSources = []domain.DataSource{
		{SourceName: sourceName, SourceType: domain.SourceTypeAPI, IsFallback: fallback},
	}
	return r
}

func TestFallbackFrequency(t *testing.T) {
	records := []domain.AuditRecord{
		recordWithRate(decimal.NewFromFloat(0.05), false, "borrow_rate_provider"),
		recordWithRate(decimal.NewFromFloat(0.02), true, "borrow_rate_provider"),
		recordWithRate(decimal.NewFromFloat(0.02), true, "borrow_rate_provider"),
	}

	freq := FallbackFrequency(records)
	assert.InDelta(t, 2.0/3.0, freq, 1e-9)
}

func TestFallbackFrequency_Empty(t *testing.T) {
	assert.Equal(t, 0.0, FallbackFrequency(nil))
}

func TestTopFallbackSources(t *testing.T) {
	records := []domain.AuditRecord{
		recordWithRate(decimal.NewFromFloat(0.02), true, "borrow_rate_provider"),
		recordWithRate(decimal.NewFromFloat(0.02), true, "borrow_rate_provider"),
		recordWithRate(decimal.NewFromFloat(0.02), true, "volatility_provider"),
	}

	top := TopFallbackSources(records, 5)
	require.Len(t, top, 2)
	assert.Equal(t, "borrow_rate_provider", top[0].SourceName)
	assert.Equal(t, 2, top[0].Count)
	assert.Equal(t, "volatility_provider", top[1].SourceName)
}

func TestComputeRateDifference(t *testing.T) {
	records := []domain.AuditRecord{
		recordWithRate(decimal.NewFromFloat(0.05), false, "borrow_rate_provider"),
		recordWithRate(decimal.NewFromFloat(0.07), false, "borrow_rate_provider"),
		recordWithRate(decimal.NewFromFloat(0.02), true, "borrow_rate_provider"),
	}

	diff := ComputeRateDifference(records)
	require.True(t, diff.Ok)
	assert.True(t, diff.NormalMeanRate.Equal(decimal.NewFromFloat(0.06)))
	assert.True(t, diff.FallbackMeanRate.Equal(decimal.NewFromFloat(0.02)))
	assert.True(t, diff.Difference.IsNegative())
}

func TestComputeRateDifference_NoFallbackBucket(t *testing.T) {
	records := []domain.AuditRecord{
		recordWithRate(decimal.NewFromFloat(0.05), false, "borrow_rate_provider"),
	}
	diff := ComputeRateDifference(records)
	assert.False(t, diff.Ok)
}
