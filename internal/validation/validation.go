// Package validation checks inbound locate-fee requests against the field
// constraints in the data model, producing *apierr.Error so callers never have
// to translate a generic validation failure into the taxonomy themselves.
package validation

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/galatea-associates/locate-fee-engine/internal/apierr"
	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

var (
	tickerPattern   = regexp.MustCompile(`^[A-Z]{1,5}$`)
	clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)
)

var (
	maxPositionValue = decimal.NewFromFloat(1e9)
	zero             = decimal.Zero
)

// ValidateCalculationRequest checks ticker, position_value, loan_days, and
// client_id against the invariants in §3 of the data model. It returns the
// first violated constraint; no upstream calls are made before validation
// passes.
func ValidateCalculationRequest(req domain.CalculationRequest) *apierr.Error {
	if !tickerPattern.MatchString(req.Ticker) {
		return apierr.Validation("ticker", "ticker must match ^[A-Z]{1,5}$")
	}

	if !clientIDPattern.MatchString(req.ClientID) {
		return apierr.Validation("client_id", "client_id must be 3-50 chars from [A-Za-z0-9_-]")
	}

	if req.PositionValue.LessThanOrEqual(zero) {
		return apierr.Validation("position_value", "position_value must be greater than 0")
	}
	if req.PositionValue.GreaterThan(maxPositionValue) {
		return apierr.Validation("position_value", "position_value must not exceed 1e9")
	}

	if req.LoanDays < 1 {
		return apierr.Validation("loan_days", "loan_days must be at least 1")
	}
	if req.LoanDays > 365 {
		return apierr.Validation("loan_days", "loan_days must not exceed 365")
	}

	return nil
}

// ValidateBrokerConfig checks a broker configuration against the data-model
// constraints. The repositories in internal/db do not call it.
func ValidateBrokerConfig(cfg domain.BrokerConfig) *apierr.Error {
	if !clientIDPattern.MatchString(cfg.ClientID) {
		return apierr.Validation("client_id", "client_id must be 3-50 chars from [A-Za-z0-9_-]")
	}
	if cfg.MarkupPercentage.LessThan(zero) || cfg.MarkupPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return apierr.Validation("markup_percentage", "markup_percentage must be within 0-100")
	}
	if !cfg.TransactionFeeType.Valid() {
		return apierr.Validation("transaction_fee_type", "transaction_fee_type must be FLAT or PERCENTAGE")
	}
	if cfg.TransactionAmount.LessThan(zero) {
		return apierr.Validation("transaction_amount", "transaction_amount must be non-negative")
	}
	if cfg.TransactionFeeType == domain.FeeTypePercentage && cfg.TransactionAmount.GreaterThan(decimal.NewFromInt(100)) {
		return apierr.Validation("transaction_amount", "percentage transaction_amount must not exceed 100")
	}
	return nil
}
