// Package money provides fixed-point decimal helpers shared by the
// valuation engine. Quantities and unit costs are decimal.Decimal end to
// end; float64 never enters a costing path.
package money

import (
	"github.com/shopspring/decimal"
)

// CostScale is the number of fractional digits kept on unit costs.
// Matches NUMERIC(15,4) storage.
const CostScale = 4

// ValueScale is the number of fractional digits kept on monetary line and
// total values. Matches NUMERIC(15,2) storage.
const ValueScale = 2

// Zero is the canonical zero value.
var Zero = decimal.Zero

// New parses a decimal string.
func New(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// Must parses a decimal string and panics on error. Test and seed data only.
func Must(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt builds a decimal from an integer count.
func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// RoundCost rounds a unit cost to CostScale, half up.
func RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(CostScale)
}

// RoundValue rounds a monetary value to ValueScale, half up.
func RoundValue(d decimal.Decimal) decimal.Decimal {
	return d.Round(ValueScale)
}

// IsNegative reports d < 0.
func IsNegative(d decimal.Decimal) bool {
	return d.Sign() < 0
}

// IsPositive reports d > 0.
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// IsZero reports d == 0 regardless of exponent.
func IsZero(d decimal.Decimal) bool {
	return d.Sign() == 0
}
