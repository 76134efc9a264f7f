// Package ncr records non-conformance reports. Price-variance NCRs are
// generated automatically inside delivery posting; manual NCRs cover
// quality and quantity findings raised by operators.
package ncr

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies what the report is about.
type Type string

const (
	TypePriceVariance Type = "PRICE_VARIANCE"
	TypeQuality       Type = "QUALITY"
	TypeQuantity      Type = "QUANTITY"
)

// NCR is a non-conformance report. Reason and Value are immutable once
// created; lifecycle beyond creation lives outside this engine.
type NCR struct {
	ID            int64
	Type          Type
	LocationID    int64
	PeriodID      int64
	DeliveryID    *int64
	ItemID        *int64
	Reason        string
	Value         decimal.Decimal
	AutoGenerated bool
	CreatedBy     *int64
	CreatedAt     time.Time
}
