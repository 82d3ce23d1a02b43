// Package money provides fixed-point monetary helpers shared by the ledger
// core. All amounts are shopspring decimals rounded at the owning currency's
// minor-unit precision; binary floating point never touches a balance.
package money

import (
	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const defaultScale = 2

// Scale returns the minor-unit exponent for an ISO currency code.
// Unknown codes fall back to two decimal places.
func Scale(code string) int32 {
	if c := gomoney.GetCurrency(code); c != nil {
		return int32(c.Fraction)
	}
	return defaultScale
}

// Round rounds an amount to the currency's precision, half away from zero.
func Round(code string, d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale(code))
}

// MinorUnit returns one minor unit of the currency, e.g. 0.01 for MYR.
// Line-total comparisons tolerate exactly one minor unit of rounding drift.
func MinorUnit(code string) decimal.Decimal {
	return decimal.New(1, -Scale(code))
}

// Equal reports whether two amounts are identical at currency precision.
func Equal(code string, a, b decimal.Decimal) bool {
	return Round(code, a).Equal(Round(code, b))
}

// WithinTolerance reports whether two amounts differ by at most one minor
// unit after rounding.
func WithinTolerance(code string, a, b decimal.Decimal) bool {
	diff := Round(code, a).Sub(Round(code, b)).Abs()
	return diff.LessThanOrEqual(MinorUnit(code))
}

// Zero returns a zero amount. Provided for symmetry at call sites that
// accumulate totals.
func Zero() decimal.Decimal {
	return decimal.Zero
}
