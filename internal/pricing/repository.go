package pricing

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads period-locked item prices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPrices resolves the locked price for each item in one round trip.
// Items without a price for the period come back in missing, sorted, so the
// caller can fail closed before writing anything.
func (r *Repository) GetPrices(ctx context.Context, periodID int64, itemIDs []int64) (map[int64]decimal.Decimal, []int64, error) {
	prices := make(map[int64]decimal.Decimal, len(itemIDs))
	if len(itemIDs) == 0 {
		return prices, nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT item_id, price FROM item_prices
WHERE period_id=$1 AND item_id = ANY($2)`, periodID, itemIDs)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var itemID int64
		var price decimal.Decimal
		if err := rows.Scan(&itemID, &price); err != nil {
			return nil, nil, err
		}
		prices[itemID] = price
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var missing []int64
	seen := make(map[int64]bool, len(itemIDs))
	for _, id := range itemIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := prices[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return prices, missing, nil
}
