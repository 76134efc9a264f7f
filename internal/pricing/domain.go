// Package pricing holds period-locked item prices and the price variance
// detector used by delivery posting.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemPrice is the locked unit price of an item for one period. Immutable
// once referenced by a posted delivery line.
type ItemPrice struct {
	ItemID    int64
	PeriodID  int64
	Price     decimal.Decimal
	CreatedAt time.Time
}

// Variance is the outcome of comparing a delivery line's actual unit price
// against the locked period price.
type Variance struct {
	// Delta is unitPrice − periodPrice; sign is preserved.
	Delta decimal.Decimal
	// Value is delta × quantity, the signed monetary impact of the line.
	Value decimal.Decimal
}

// Detected reports whether the line deviated from the period price at all.
// There is no tolerance threshold.
func (v Variance) Detected() bool {
	return v.Delta.Sign() != 0
}
