package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository serves read-only ledger queries outside movement transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetLine returns the current stock line without locking it.
func (r *Repository) GetLine(ctx context.Context, locationID, itemID int64) (StockLine, error) {
	var line StockLine
	err := r.pool.QueryRow(ctx, `SELECT location_id, item_id, on_hand, wac, updated_at
FROM stock_lines WHERE location_id=$1 AND item_id=$2`, locationID, itemID).
		Scan(&line.LocationID, &line.ItemID, &line.OnHand, &line.WAC, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLine{}, ErrLineNotFound
		}
		return StockLine{}, err
	}
	return line, nil
}

// ListByLocation returns all stock lines held at a location.
func (r *Repository) ListByLocation(ctx context.Context, locationID int64) ([]StockLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT location_id, item_id, on_hand, wac, updated_at
FROM stock_lines WHERE location_id=$1 ORDER BY item_id`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []StockLine
	for rows.Next() {
		var line StockLine
		if err := rows.Scan(&line.LocationID, &line.ItemID, &line.OnHand, &line.WAC, &line.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// LocationValue sums on_hand × wac over every line at the location. This is
// the live closing-stock snapshot used by reconciliation.
func (r *Repository) LocationValue(ctx context.Context, locationID int64) (decimal.Decimal, error) {
	var value decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(on_hand * wac), 0)
FROM stock_lines WHERE location_id=$1`, locationID).Scan(&value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return value, nil
}

// ScanIntegrity returns lines violating the non-negative invariants.
// Consumed by the nightly integrity job; an empty result is the healthy case.
func (r *Repository) ScanIntegrity(ctx context.Context) ([]StockLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT location_id, item_id, on_hand, wac, updated_at
FROM stock_lines WHERE on_hand < 0 OR wac < 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []StockLine
	for rows.Next() {
		var line StockLine
		if err := rows.Scan(&line.LocationID, &line.ItemID, &line.OnHand, &line.WAC, &line.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
