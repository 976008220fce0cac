package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	decOne      = decimal.NewFromInt(1)
	decimalZero = decimal.Zero
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func decimalLTE(a, b float64) bool { return decimalCompare(a, b) <= 0 }
func decimalGTE(a, b float64) bool { return decimalCompare(a, b) >= 0 }
func decimalGT(a, b float64) bool  { return decimalCompare(a, b) > 0 }

// targetPrice returns entry lifted by offsetPct (long positions only).
func targetPrice(entry, offsetPct float64) float64 {
	if entry <= 0 || offsetPct <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(entry).Mul(decOne.Add(decFromFloat(offsetPct))))
}

// stopPrice returns entry lowered by stopPct.
func stopPrice(entry, stopPct float64) float64 {
	if entry <= 0 || stopPct <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(entry).Mul(decOne.Sub(decFromFloat(stopPct))))
}

// trailingStopPrice returns the stop a fixed percentage below the watermark.
func trailingStopPrice(watermark, trailPct float64) float64 {
	if watermark <= 0 || trailPct <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(watermark).Mul(decOne.Sub(decFromFloat(trailPct))))
}

func priceBreachedStop(price, stop float64) bool {
	if stop <= 0 || price <= 0 {
		return false
	}
	return decimalLTE(price, stop)
}

func targetHit(price, target float64) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	return decimalGTE(price, target)
}
