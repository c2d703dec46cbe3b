package rules

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// TargetPrice applies a signed percentage offset to a reference price.
// BUY-side positions move up with positive percents, SELL-side down.
// Stop-loss percents are conventionally negative for long positions.
func TargetPrice(reference, percent float64, side types.OrderSide) float64 {
	if reference <= 0 {
		return 0
	}
	base := decFromFloat(reference)
	frac := decFromFloat(percent).Div(decHundred)
	var factor decimal.Decimal
	switch side {
	case types.SideSell:
		factor = decOne.Sub(frac)
	default:
		factor = decOne.Add(frac)
	}
	return decToFloat(base.Mul(factor))
}

// percentDiff returns (b-a)/a*100 using decimal arithmetic, 0 when a
// is not positive.
func percentDiff(a, b float64) float64 {
	if a <= 0 {
		return 0
	}
	da := decFromFloat(a)
	db := decFromFloat(b)
	return decToFloat(db.Sub(da).Div(da).Mul(decHundred))
}
