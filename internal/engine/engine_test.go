package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intPtr(i int) *int { return &i }

func TestCalculate_HappyPathNormalMarket(t *testing.T) {
	req := domain.CalculationRequest{
		Ticker:        "AAPL",
		PositionValue: decimal.NewFromInt(100000),
		LoanDays:      30,
		ClientID:      "client123",
	}
	ticker := domain.Ticker{Symbol: "AAPL", MinBorrowRate: decimal.RequireFromString("0.02")}
	broker := domain.BrokerConfig{
		ClientID:           "client123",
		MarkupPercentage:   decimal.NewFromInt(5),
		TransactionFeeType: domain.FeeTypeFlat,
		TransactionAmount:  decimal.NewFromInt(25),
		Active:             true,
	}
	ctx := domain.RateContext{
		BaseRate:        decimal.RequireFromString("0.05"),
		VolatilityIndex: decPtr("1.5"),
		EventRiskFactor: intPtr(2),
	}

	result, err := New().Calculate(req, ticker, broker, ctx)
	require.Nil(t, err)

	assert.Equal(t, "0.0750", result.BorrowRateUsed.StringFixed(4))
	assert.Equal(t, "616.44", result.Breakdown.BorrowCost.String())
	assert.Equal(t, "30.82", result.Breakdown.Markup.String())
	assert.Equal(t, "25.00", result.Breakdown.TransactionFees.StringFixed(2))
	assert.Equal(t, "672.26", result.TotalFee.String())
	assert.True(t, result.Breakdown.Total().Equal(result.TotalFee))
}

func TestCalculate_HardToBorrowClampedVolatility(t *testing.T) {
	req := domain.CalculationRequest{
		Ticker:        "GME",
		PositionValue: decimal.NewFromInt(50000),
		LoanDays:      60,
		ClientID:      "client456",
	}
	ticker := domain.Ticker{Symbol: "GME", MinBorrowRate: decimal.RequireFromString("0.02")}
	broker := domain.BrokerConfig{
		ClientID:           "client456",
		MarkupPercentage:   decimal.NewFromInt(10),
		TransactionFeeType: domain.FeeTypePercentage,
		TransactionAmount:  decimal.RequireFromString("0.5"),
		Active:             true,
	}
	ctx := domain.RateContext{
		BaseRate:        decimal.RequireFromString("0.75"),
		VolatilityIndex: decPtr("8.5"),
		EventRiskFactor: intPtr(8),
	}

	result, err := New().Calculate(req, ticker, broker, ctx)
	require.Nil(t, err)

	assert.Equal(t, "0.8900", result.BorrowRateUsed.StringFixed(4))
	assert.Equal(t, "250.00", result.Breakdown.TransactionFees.StringFixed(2))
	assert.True(t, result.Breakdown.Total().Equal(result.TotalFee))

	// volatility adjustment clamped to the 0.10 ceiling, not 0.085
	require.NotNil(t, result.VolatilityAdjustment)
	assert.Equal(t, "0.10", result.VolatilityAdjustment.StringFixed(2))
}

func TestCalculate_AbsentSignalsContributeZero(t *testing.T) {
	req := domain.CalculationRequest{
		Ticker:        "AAPL",
		PositionValue: decimal.NewFromInt(10000),
		LoanDays:      10,
		ClientID:      "client123",
	}
	ticker := domain.Ticker{Symbol: "AAPL", MinBorrowRate: decimal.RequireFromString("0.01")}
	broker := domain.BrokerConfig{
		ClientID:           "client123",
		MarkupPercentage:   decimal.Zero,
		TransactionFeeType: domain.FeeTypeFlat,
		TransactionAmount:  decimal.Zero,
		Active:             true,
	}
	ctx := domain.RateContext{BaseRate: decimal.RequireFromString("0.03")}

	result, err := New().Calculate(req, ticker, broker, ctx)
	require.Nil(t, err)

	assert.Nil(t, result.VolatilityAdjustment)
	assert.Nil(t, result.EventRiskAdjustment)
	assert.Equal(t, "0.0300", result.BorrowRateUsed.StringFixed(4))
}

func TestCalculate_RateFloorsAtTickerMinimum(t *testing.T) {
	req := domain.CalculationRequest{
		Ticker:        "AAPL",
		PositionValue: decimal.NewFromInt(10000),
		LoanDays:      10,
		ClientID:      "client123",
	}
	ticker := domain.Ticker{Symbol: "AAPL", MinBorrowRate: decimal.RequireFromString("0.05")}
	broker := domain.BrokerConfig{
		ClientID:           "client123",
		MarkupPercentage:   decimal.Zero,
		TransactionFeeType: domain.FeeTypeFlat,
		TransactionAmount:  decimal.Zero,
		Active:             true,
	}
	ctx := domain.RateContext{BaseRate: decimal.RequireFromString("0.01")}

	result, err := New().Calculate(req, ticker, broker, ctx)
	require.Nil(t, err)

	assert.True(t, result.BorrowRateUsed.GreaterThanOrEqual(ticker.MinBorrowRate))
	assert.Equal(t, "0.0500", result.BorrowRateUsed.StringFixed(4))
}

func TestCalculate_UnknownFeeTypeIsCalculationError(t *testing.T) {
	req := domain.CalculationRequest{
		Ticker:        "AAPL",
		PositionValue: decimal.NewFromInt(10000),
		LoanDays:      10,
		ClientID:      "client123",
	}
	ticker := domain.Ticker{Symbol: "AAPL", MinBorrowRate: decimal.Zero}
	broker := domain.BrokerConfig{
		ClientID:           "client123",
		TransactionFeeType: "UNKNOWN",
	}
	ctx := domain.RateContext{BaseRate: decimal.RequireFromString("0.03")}

	_, err := New().Calculate(req, ticker, broker, ctx)
	require.NotNil(t, err)
	assert.Equal(t, "CalculationError", string(err.Kind))
}
