// Package delivery posts delivery receipts: goods arriving from a
// supplier into a location's stock, valued at weighted average cost, with
// automatic price variance reporting.
package delivery

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delivery is a posted receipt header. Totals are derived from the lines
// at posting time and never recomputed.
type Delivery struct {
	ID           int64
	LocationID   int64
	PeriodID     int64
	SupplierID   *int64
	Reference    string
	DeliveryDate time.Time
	TotalValue   decimal.Decimal
	HasVariance  bool
	PostedBy     *int64
	PostedAt     time.Time
}

// Line is one received item. PeriodPrice is a snapshot of the locked
// price at posting time; the variance fields record any deviation of the
// invoiced unit price from it.
type Line struct {
	ID            int64
	DeliveryID    int64
	ItemID        int64
	ItemName      string
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	PeriodPrice   decimal.Decimal
	LineValue     decimal.Decimal
	VarianceValue decimal.Decimal
	HasVariance   bool
}
