package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CardEntry is one movement affecting a stock line, assembled from the
// posted movement tables for display as a stock card.
type CardEntry struct {
	Kind       string
	RefID      int64
	Reference  string
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	Value      decimal.Decimal
	OccurredAt time.Time
}

// Movement kinds on a stock card. Transfers appear twice, once per side.
const (
	CardDelivery    = "DELIVERY"
	CardIssue       = "ISSUE"
	CardTransferIn  = "TRANSFER_IN"
	CardTransferOut = "TRANSFER_OUT"
)

// StockCard lists the movement history for one (location, item), newest
// first. Issue and outbound transfer quantities come back negative.
func (r *Repository) StockCard(ctx context.Context, locationID, itemID int64, limit int) ([]CardEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
SELECT 'DELIVERY', d.id, d.reference, dl.quantity, dl.unit_price, dl.line_value, d.posted_at
FROM delivery_lines dl JOIN deliveries d ON d.id = dl.delivery_id
WHERE d.location_id=$1 AND dl.item_id=$2
UNION ALL
SELECT 'ISSUE', i.id, i.reference, -il.quantity, il.wac_at_issue, -il.line_value, i.posted_at
FROM issue_lines il JOIN issues i ON i.id = il.issue_id
WHERE i.location_id=$1 AND il.item_id=$2
UNION ALL
SELECT 'TRANSFER_IN', t.id, t.reference, tl.quantity, tl.wac_at_transfer, tl.line_value, t.decided_at
FROM transfer_lines tl JOIN transfers t ON t.id = tl.transfer_id
WHERE t.to_location_id=$1 AND tl.item_id=$2 AND t.status='COMPLETED'
UNION ALL
SELECT 'TRANSFER_OUT', t.id, t.reference, -tl.quantity, tl.wac_at_transfer, -tl.line_value, t.decided_at
FROM transfer_lines tl JOIN transfers t ON t.id = tl.transfer_id
WHERE t.from_location_id=$1 AND tl.item_id=$2 AND t.status='COMPLETED'
ORDER BY 7 DESC
LIMIT $3`, locationID, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CardEntry
	for rows.Next() {
		var e CardEntry
		if err := rows.Scan(&e.Kind, &e.RefID, &e.Reference, &e.Quantity, &e.UnitCost, &e.Value, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
