// Package money keeps all internal arithmetic in integer minor units.
// Conversion to and from decimal major units happens only at provider and
// API boundaries.
package money

import "github.com/shopspring/decimal"

// RoundHalfUpPercent applies rate (e.g. 0.18) to an amount in minor units
// and rounds half away from zero to the nearest minor unit. Integer in,
// integer out; the decimal intermediate removes any float drift.
func RoundHalfUpPercent(amountCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amountCents).Mul(rate).Round(0).IntPart()
}

// ToMajorString renders minor units as a decimal major-unit string
// ("1416" -> "14.16"). Boundary use only.
func ToMajorString(amountCents int64) string {
	return decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// FromMajorString parses a decimal major-unit string into minor units.
func FromMajorString(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
