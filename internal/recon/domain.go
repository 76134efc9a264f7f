// Package recon computes the period reconciliation for a location: the
// stock movement identity tying opening stock, receipts, transfers and
// issues to closing stock and consumption.
package recon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tags where the figures came from.
type Source string

const (
	// SourcePersisted means the figures were read from a stored row,
	// typically written at period close.
	SourcePersisted Source = "PERSISTED"
	// SourceComputed means the figures were synthesized on demand from
	// movement lines and the live stock ledger.
	SourceComputed Source = "COMPUTED"
)

// Adjustments are the manual corrections applied to consumption.
type Adjustments struct {
	BackCharges   decimal.Decimal
	Credits       decimal.Decimal
	Condemnations decimal.Decimal
	Adjustments   decimal.Decimal
}

// Total folds the corrections into one signed amount:
// back_charges − credits + condemnations + adjustments.
func (a Adjustments) Total() decimal.Decimal {
	return a.BackCharges.Sub(a.Credits).Add(a.Condemnations).Add(a.Adjustments)
}

// Reconciliation is the full view for one (period, location).
type Reconciliation struct {
	PeriodID   int64
	LocationID int64
	Source     Source

	OpeningStock decimal.Decimal
	Receipts     decimal.Decimal
	TransfersIn  decimal.Decimal
	TransfersOut decimal.Decimal
	Issues       decimal.Decimal
	ClosingStock decimal.Decimal

	Adjustments      Adjustments
	TotalAdjustments decimal.Decimal
	Consumption      decimal.Decimal

	TotalMandays int64
	// MandayCost is nil when no mandays were recorded for the period.
	MandayCost *decimal.Decimal

	ComputedAt time.Time
}

// Consumption applies the movement identity:
// opening + receipts + transfers_in − closing − transfers_out + adjustments.
func Consumption(opening, receipts, transfersIn, closing, transfersOut, totalAdjustments decimal.Decimal) decimal.Decimal {
	return opening.Add(receipts).Add(transfersIn).Sub(closing).Sub(transfersOut).Add(totalAdjustments)
}
