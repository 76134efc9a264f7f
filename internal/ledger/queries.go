package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TxQueries bundles the stock line statements every movement transaction
// shares. Constructed per transaction so all line reads and writes happen
// under the same snapshot and row locks.
type TxQueries struct {
	tx pgx.Tx
}

// NewTxQueries wraps an open transaction.
func NewTxQueries(tx pgx.Tx) *TxQueries {
	return &TxQueries{tx: tx}
}

// GetLineForUpdate locks and returns the stock line for (location, item).
// Returns ErrLineNotFound when the line was never created; the caller
// decides whether that is a lazy-create (receipt) or a consistency failure
// (issue/transfer source).
func (q *TxQueries) GetLineForUpdate(ctx context.Context, locationID, itemID int64) (StockLine, error) {
	var line StockLine
	err := q.tx.QueryRow(ctx, `SELECT location_id, item_id, on_hand, wac, updated_at
FROM stock_lines WHERE location_id=$1 AND item_id=$2 FOR UPDATE`, locationID, itemID).
		Scan(&line.LocationID, &line.ItemID, &line.OnHand, &line.WAC, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLine{LocationID: locationID, ItemID: itemID, OnHand: decimal.Zero, WAC: decimal.Zero}, ErrLineNotFound
		}
		return StockLine{}, err
	}
	return line, nil
}

// UpsertLine writes a stock line's quantity and cost.
func (q *TxQueries) UpsertLine(ctx context.Context, line StockLine) error {
	_, err := q.tx.Exec(ctx, `INSERT INTO stock_lines (location_id, item_id, on_hand, wac, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (location_id, item_id) DO UPDATE SET on_hand=EXCLUDED.on_hand, wac=EXCLUDED.wac, updated_at=NOW()`,
		line.LocationID, line.ItemID, line.OnHand, line.WAC)
	return err
}
