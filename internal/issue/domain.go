// Package issue posts consumption: stock leaving a location to be used,
// valued at the weighted average cost in force at the moment of issue.
package issue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Issue is a posted consumption header.
type Issue struct {
	ID         int64
	LocationID int64
	PeriodID   int64
	Reference  string
	IssueDate  time.Time
	TotalValue decimal.Decimal
	PostedBy   *int64
	PostedAt   time.Time
}

// Line is one consumed item. WACAtIssue freezes the stock line's cost at
// posting time; LineValue is quantity times that frozen cost. Later cost
// changes never restate a posted issue.
type Line struct {
	ID         int64
	IssueID    int64
	ItemID     int64
	Quantity   decimal.Decimal
	WACAtIssue decimal.Decimal
	LineValue  decimal.Decimal
}
