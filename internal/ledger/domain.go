// Package ledger holds the per-location stock valuation state: one
// StockLine per (location, item) carrying on-hand quantity and weighted
// average cost. Lines are created lazily on first receipt, never deleted,
// and mutated only inside movement transactions.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// StockLine is the per-location-per-item valuation row.
type StockLine struct {
	LocationID int64
	ItemID     int64
	OnHand     decimal.Decimal
	WAC        decimal.Decimal
	UpdatedAt  time.Time
}

// Value returns on_hand × wac, the line's current ledger value.
func (l StockLine) Value() decimal.Decimal {
	return l.OnHand.Mul(l.WAC)
}

// ErrLineNotFound indicates a missing stock line row.
var ErrLineNotFound = errors.New("ledger: stock line not found")
