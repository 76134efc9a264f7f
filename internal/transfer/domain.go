// Package transfer moves stock between locations through a two-phase
// request and approval flow. Stock is read at request time but only moved
// at approval, after re-validation under row locks.
package transfer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the transfer lifecycle. COMPLETED and REJECTED are
// terminal. APPROVED exists in the data model for compatibility with
// manually migrated records; the engine moves straight to COMPLETED.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusCompleted       Status = "COMPLETED"
)

// ValidateTransition checks a status change against the state machine.
func ValidateTransition(current, target Status) bool {
	switch current {
	case StatusDraft:
		return target == StatusPendingApproval
	case StatusPendingApproval:
		return target == StatusApproved || target == StatusCompleted || target == StatusRejected
	case StatusApproved:
		return target == StatusCompleted
	}
	return false
}

// Transfer is a stock movement between two locations.
type Transfer struct {
	ID             int64
	FromLocationID int64
	ToLocationID   int64
	PeriodID       int64
	Reference      string
	TransferDate   time.Time
	Status         Status
	TotalValue     decimal.Decimal
	RequestedBy    *int64
	RequestedAt    time.Time
	DecidedBy      *int64
	DecidedAt      *time.Time
}

// Line is one transferred item. WACAtTransfer freezes the source stock
// line's cost at request time; it becomes the receipt price at the
// destination when the transfer completes.
type Line struct {
	ID            int64
	TransferID    int64
	ItemID        int64
	Quantity      decimal.Decimal
	WACAtTransfer decimal.Decimal
	LineValue     decimal.Decimal
}
