package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tolerance table. Differences at or below the tolerance are not breaks;
// the boundary itself is inclusive (a difference of exactly one unit does
// not fire a quantity break).
var (
	quantityTolerance = decimal.NewFromInt(1)
	rateTolerance     = decimal.RequireFromString("0.001")
	taxRateTolerance  = decimal.RequireFromString("0.1") // percentage points
	fxTolerance       = decimal.RequireFromString("0.0005")

	minorUnitTolerance = decimal.RequireFromString("0.01")
	wholeUnitTolerance = decimal.NewFromInt(1)

	hundred = decimal.NewFromInt(100)
)

// ISO 4217 currencies without a fractional minor unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "ISK": {}, "JPY": {},
	"KMF": {}, "KRW": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// amountTolerance returns the comparison tolerance for monetary amounts
// in the given currency: one whole unit for zero-decimal currencies,
// one cent otherwise.
func amountTolerance(currency string) decimal.Decimal {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return wholeUnitTolerance
	}
	return minorUnitTolerance
}

// pctDiff returns the difference between base and other as a percentage
// of the base value, signed the same way as base-minus-other. When both
// values are zero the difference is zero; when only the base is zero the
// difference is reported as a full 100%.
func pctDiff(base, other decimal.Decimal) decimal.Decimal {
	if base.IsZero() && other.IsZero() {
		return decimal.Zero
	}
	if base.IsZero() {
		return hundred
	}
	return base.Sub(other).Div(base.Abs()).Mul(hundred)
}

// exceeds reports whether the absolute difference between two values is
// strictly greater than the tolerance.
func exceeds(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThan(tolerance)
}
