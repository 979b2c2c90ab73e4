package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

func validRequest() domain.CalculationRequest {
	return domain.CalculationRequest{
		Ticker:        "AAPL",
		PositionValue: decimal.NewFromInt(100000),
		LoanDays:      30,
		ClientID:      "client123",
	}
}

func TestValidateCalculationRequest(t *testing.T) {
	t.Run("accepts a valid request", func(t *testing.T) {
		err := ValidateCalculationRequest(validRequest())
		assert.Nil(t, err)
	})

	t.Run("rejects a lowercase ticker", func(t *testing.T) {
		req := validRequest()
		req.Ticker = "aapl"
		err := ValidateCalculationRequest(req)
		require.NotNil(t, err)
		assert.Equal(t, "ticker", err.Field)
	})

	t.Run("rejects negative position value", func(t *testing.T) {
		req := validRequest()
		req.PositionValue = decimal.NewFromInt(-1)
		err := ValidateCalculationRequest(req)
		require.NotNil(t, err)
		assert.Equal(t, "position_value", err.Field)
	})

	t.Run("rejects position value above 1e9", func(t *testing.T) {
		req := validRequest()
		req.PositionValue = decimal.NewFromFloat(1e9 + 1)
		err := ValidateCalculationRequest(req)
		require.NotNil(t, err)
		assert.Equal(t, "position_value", err.Field)
	})

	t.Run("rejects loan_days below 1", func(t *testing.T) {
		req := validRequest()
		req.LoanDays = 0
		err := ValidateCalculationRequest(req)
		require.NotNil(t, err)
		assert.Equal(t, "loan_days", err.Field)
	})

	t.Run("rejects loan_days above 365", func(t *testing.T) {
		req := validRequest()
		req.LoanDays = 366
		err := ValidateCalculationRequest(req)
		require.NotNil(t, err)
		assert.Equal(t, "loan_days", err.Field)
	})

	t.Run("rejects a malformed client_id", func(t *testing.T) {
		req := validRequest()
		req.ClientID = "ab"
		err := ValidateCalculationRequest(req)
		require.NotNil(t, err)
		assert.Equal(t, "client_id", err.Field)
	})
}

func TestValidateBrokerConfig(t *testing.T) {
	valid := domain.BrokerConfig{
		ClientID:           "client123",
		MarkupPercentage:   decimal.NewFromInt(5),
		TransactionFeeType: domain.FeeTypeFlat,
		TransactionAmount:  decimal.NewFromInt(25),
		Active:             true,
	}

	t.Run("accepts a valid config", func(t *testing.T) {
		assert.Nil(t, ValidateBrokerConfig(valid))
	})

	t.Run("rejects an unknown fee type", func(t *testing.T) {
		cfg := valid
		cfg.TransactionFeeType = "UNKNOWN"
		err := ValidateBrokerConfig(cfg)
		require.NotNil(t, err)
		assert.Equal(t, "transaction_fee_type", err.Field)
	})

	t.Run("rejects a percentage fee above 100", func(t *testing.T) {
		cfg := valid
		cfg.TransactionFeeType = domain.FeeTypePercentage
		cfg.TransactionAmount = decimal.NewFromInt(150)
		err := ValidateBrokerConfig(cfg)
		require.NotNil(t, err)
		assert.Equal(t, "transaction_amount", err.Field)
	})
}
