package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Detect compares a delivery line's unit price against the period price.
// Pure; exact decimal subtraction, any non-zero delta of any sign counts.
func Detect(unitPrice, periodPrice, quantity decimal.Decimal) Variance {
	delta := unitPrice.Sub(periodPrice)
	return Variance{
		Delta: delta,
		Value: delta.Mul(quantity),
	}
}

// VarianceReason renders the system-generated NCR reason naming the item
// and the two prices.
func VarianceReason(itemName string, unitPrice, periodPrice decimal.Decimal) string {
	return fmt.Sprintf("Price variance on %s: invoiced %s against period price %s",
		itemName, unitPrice.StringFixed(4), periodPrice.StringFixed(4))
}
