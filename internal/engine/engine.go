// Package engine implements the pure fee-calculation pipeline. Nothing in
// this package performs I/O; it operates only on already-resolved domain
// values, which is what makes its invariants simple to test exhaustively.
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/galatea-associates/locate-fee-engine/internal/apierr"
	"github.com/galatea-associates/locate-fee-engine/internal/decimalmath"
	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

var (
	volatilityFactor   = decimal.RequireFromString("0.01")
	volatilityCeiling  = decimal.RequireFromString("0.10")
	volatilityFloor    = decimal.Zero
	eventRiskPerPoint  = decimal.RequireFromString("0.005")
	hundred            = decimal.NewFromInt(100)
)

// Engine computes a CalculationResult from validated inputs and a resolved
// RateContext. It carries no state and is safe for concurrent use.
type Engine struct{}

// New returns a ready-to-use Engine.
func New() *Engine {
	return &Engine{}
}

// Calculate runs the six-step pricing pipeline. ticker supplies
// min_borrow_rate for the rate floor; broker supplies markup and transaction
// fee terms. It returns a *apierr.Error of kind CalculationError only if an
// invariant is violated, which indicates a bug rather than bad input (inputs
// are assumed pre-validated by internal/validation).
func (e *Engine) Calculate(
	req domain.CalculationRequest,
	ticker domain.Ticker,
	broker domain.BrokerConfig,
	ctx domain.RateContext,
) (domain.CalculationResult, *apierr.Error) {
	volatilityAdjustment, volAdjPtr := resolveVolatilityAdjustment(ctx.VolatilityIndex)
	eventRiskAdjustment, eventAdjPtr := resolveEventRiskAdjustment(ctx.EventRiskFactor)

	rawRate := ctx.BaseRate.Add(volatilityAdjustment).Add(eventRiskAdjustment)
	finalRate := decimalmath.Max(rawRate, ticker.MinBorrowRate)

	timeFactor := decimalmath.TimeFactor(req.LoanDays)
	periodRate := finalRate.Mul(timeFactor)

	borrowCost := decimalmath.QuantizeMoney(req.PositionValue.Mul(periodRate))
	markup := decimalmath.QuantizeMoney(borrowCost.Mul(broker.MarkupPercentage.Div(hundred)))

	transactionFees, err := computeTransactionFees(req.PositionValue, broker)
	if err != nil {
		return domain.CalculationResult{}, err
	}

	breakdown := domain.FeeBreakdown{
		BorrowCost:      borrowCost,
		Markup:          markup,
		TransactionFees: transactionFees,
	}
	totalFee := breakdown.Total()

	return domain.CalculationResult{
		TotalFee:             totalFee,
		Breakdown:            breakdown,
		BorrowRateUsed:       finalRate,
		BaseBorrowRate:       ctx.BaseRate,
		VolatilityAdjustment: volAdjPtr,
		EventRiskAdjustment:  eventAdjPtr,
		AnnualizedRate:       finalRate,
		TimeFactor:           timeFactor,
	}, nil
}

// computeTransactionFees is the closed switch over the FeeType tagged
// variant — deliberately not a dictionary dispatch, per the data model's
// capability-set guidance.
func computeTransactionFees(positionValue decimal.Decimal, broker domain.BrokerConfig) (decimal.Decimal, *apierr.Error) {
	switch broker.TransactionFeeType {
	case domain.FeeTypeFlat:
		return decimalmath.QuantizeMoney(broker.TransactionAmount), nil
	case domain.FeeTypePercentage:
		return decimalmath.QuantizeMoney(positionValue.Mul(broker.TransactionAmount.Div(hundred))), nil
	default:
		return decimal.Decimal{}, apierr.Calculation("unknown transaction fee type")
	}
}

// resolveVolatilityAdjustment applies clamp(index * 0.01, 0, 0.10). A nil
// index means the signal was absent and the term is zero — absence is not
// synthesized as a non-zero value.
func resolveVolatilityAdjustment(index *decimal.Decimal) (decimal.Decimal, *decimal.Decimal) {
	if index == nil {
		return decimal.Zero, nil
	}
	adj := decimalmath.Clamp(index.Mul(volatilityFactor), volatilityFloor, volatilityCeiling)
	return adj, &adj
}

// resolveEventRiskAdjustment applies factor * 0.005. A nil factor means the
// signal was absent and the term is zero.
func resolveEventRiskAdjustment(factor *int) (decimal.Decimal, *decimal.Decimal) {
	if factor == nil {
		return decimal.Zero, nil
	}
	adj := decimal.NewFromInt(int64(*factor)).Mul(eventRiskPerPoint)
	return adj, &adj
}
