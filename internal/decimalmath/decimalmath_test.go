package decimalmath

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestQuantizeRate(t *testing.T) {
	t.Run("rounds half to even at four places", func(t *testing.T) {
		x := decimal.RequireFromString("0.07500125")
		assert.Equal(t, "0.075", QuantizeRate(x).String())
	})

	t.Run("banker's rounding on exact halfway", func(t *testing.T) {
		// 0.00015 sits exactly halfway between 0.0001 and 0.0002; half-to-even picks 0.0002
		x := decimal.RequireFromString("0.00015")
		assert.Equal(t, "0.0002", QuantizeRate(x).String())
	})
}

func TestQuantizeMoney(t *testing.T) {
	t.Run("rounds to two places", func(t *testing.T) {
		x := decimal.RequireFromString("616.438356")
		assert.Equal(t, "616.44", QuantizeMoney(x).String())
	})
}

func TestAnnualizeToPeriod(t *testing.T) {
	t.Run("scenario one from the end-to-end spec", func(t *testing.T) {
		finalRate := decimal.RequireFromString("0.075")
		loanDays := decimal.NewFromInt(30)
		periodRate := AnnualizeToPeriod(finalRate, loanDays)
		position := decimal.NewFromInt(100000)
		borrowCost := QuantizeMoney(position.Mul(periodRate))
		assert.Equal(t, "616.44", borrowCost.String())
	})
}

func TestTimeFactor(t *testing.T) {
	tf := TimeFactor(30)
	assert.True(t, tf.GreaterThan(decimal.RequireFromString("0.0821")))
	assert.True(t, tf.LessThan(decimal.RequireFromString("0.0823")))
}

func TestClamp(t *testing.T) {
	lo := decimal.Zero
	hi := decimal.RequireFromString("0.10")

	t.Run("below range clamps to lo", func(t *testing.T) {
		assert.True(t, Clamp(decimal.RequireFromString("-1"), lo, hi).Equal(lo))
	})

	t.Run("above range clamps to hi", func(t *testing.T) {
		assert.True(t, Clamp(decimal.RequireFromString("0.15"), lo, hi).Equal(hi))
	})

	t.Run("inside range is unchanged", func(t *testing.T) {
		mid := decimal.RequireFromString("0.05")
		assert.True(t, Clamp(mid, lo, hi).Equal(mid))
	})
}

func TestMax(t *testing.T) {
	a := decimal.RequireFromString("0.02")
	b := decimal.RequireFromString("0.075")
	assert.True(t, Max(a, b).Equal(b))
	assert.True(t, Max(b, a).Equal(b))
}
