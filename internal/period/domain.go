package period

import (
	"errors"
	"time"
)

// Status enumerates the accounting period lifecycle.
type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusOpen         Status = "OPEN"
	StatusPendingClose Status = "PENDING_CLOSE"
	StatusApproved     Status = "APPROVED"
	StatusClosed       Status = "CLOSED"
)

// LocationStatus is the per-location posting status of a period. A movement
// transaction against a location is rejected unless its location status is
// OPEN.
type LocationStatus string

const (
	LocationOpen   LocationStatus = "OPEN"
	LocationReady  LocationStatus = "READY"
	LocationClosed LocationStatus = "CLOSED"
)

// Period is an accounting window over which item prices are locked and
// reconciliation is performed. The engine reads period state; transitions
// are managed by the administrative layer.
type Period struct {
	ID        int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether t falls inside the period's date range. The
// bounds are DATE-valued (midnight), so only t's calendar date is compared;
// a timestamp anywhere on the last day is still inside the period.
func (p Period) Contains(t time.Time) bool {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// PeriodLocation tracks a single location's progress through a period.
type PeriodLocation struct {
	PeriodID   int64
	LocationID int64
	Status     LocationStatus
	UpdatedAt  time.Time
}

// ErrInvalidTransition indicates a status change not allowed by policy.
var ErrInvalidTransition = errors.New("period: transition invalid")

// ValidateTransition checks period status transitions according to policy.
// Exposed for the administrative layer; the engine itself never transitions.
func ValidateTransition(current, target Status) error {
	if current == target {
		return nil
	}
	switch current {
	case StatusDraft:
		if target == StatusOpen {
			return nil
		}
	case StatusOpen:
		if target == StatusPendingClose {
			return nil
		}
	case StatusPendingClose:
		if target == StatusApproved || target == StatusOpen {
			return nil
		}
	case StatusApproved:
		if target == StatusClosed {
			return nil
		}
	}
	return ErrInvalidTransition
}

// ValidateLocationTransition checks per-location status changes.
func ValidateLocationTransition(current, target LocationStatus) error {
	if current == target {
		return nil
	}
	switch current {
	case LocationOpen:
		if target == LocationReady {
			return nil
		}
	case LocationReady:
		if target == LocationClosed || target == LocationOpen {
			return nil
		}
	}
	return ErrInvalidTransition
}
