// Package decimalmath centralizes the fixed-precision arithmetic the pricing
// pipeline relies on. Floating-point never appears here or anywhere downstream
// of it; every value is a github.com/shopspring/decimal.Decimal from the
// moment it is parsed until it is quantized for storage or display.
package decimalmath

import (
	"github.com/shopspring/decimal"
)

// RatePrecision is the number of decimal places a rate (borrow rate, adjustment,
// time factor) is quantized to at a boundary.
const RatePrecision = 4

// MoneyPrecision is the number of decimal places a dollar amount is quantized
// to at a boundary.
const MoneyPrecision = 2

// daysPerYear is the annualization denominator used throughout the engine.
var daysPerYear = decimal.NewFromInt(365)

// QuantizeRate rounds x to RatePrecision decimal places using half-to-even
// (banker's) rounding. Intermediate results elsewhere in the pipeline must
// never be rounded; only values crossing a display or storage boundary are.
func QuantizeRate(x decimal.Decimal) decimal.Decimal {
	return x.RoundBank(RatePrecision)
}

// QuantizeMoney rounds x to MoneyPrecision decimal places using half-to-even
// rounding.
func QuantizeMoney(x decimal.Decimal) decimal.Decimal {
	return x.RoundBank(MoneyPrecision)
}

// AnnualizeToPeriod computes annualRate * (loanDays / 365) without ever
// crossing into float64. loanDays is supplied as a decimal so the caller can
// carry it through the same arithmetic type as everything else.
func AnnualizeToPeriod(annualRate decimal.Decimal, loanDays decimal.Decimal) decimal.Decimal {
	timeFactor := loanDays.Div(daysPerYear)
	return annualRate.Mul(timeFactor)
}

// TimeFactor returns loanDays / 365 at full decimal.Decimal precision
// (division is not rounded; decimal.Decimal.Div defaults to 16 places of
// precision, which is treated as "full precision" for this pipeline).
func TimeFactor(loanDays int) decimal.Decimal {
	return decimal.NewFromInt(int64(loanDays)).Div(daysPerYear)
}

// Clamp restricts x to the closed interval [lo, hi].
func Clamp(x, lo, hi decimal.Decimal) decimal.Decimal {
	if x.LessThan(lo) {
		return lo
	}
	if x.GreaterThan(hi) {
		return hi
	}
	return x
}

// Max returns the greater of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
