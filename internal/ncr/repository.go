package ncr

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertNCRSQL = `INSERT INTO ncrs
 (type, location_id, period_id, delivery_id, item_id, reason, value, auto_generated, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id, created_at`

// Repository persists NCRs outside of movement transactions.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n *NCR) error {
	return r.pool.QueryRow(ctx, insertNCRSQL,
		n.Type, n.LocationID, n.PeriodID, n.DeliveryID, n.ItemID,
		n.Reason, n.Value, n.AutoGenerated, n.CreatedBy,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *Repository) ListByDelivery(ctx context.Context, deliveryID int64) ([]NCR, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, type, location_id, period_id, delivery_id, item_id,
 reason, value, auto_generated, created_by, created_at
FROM ncrs WHERE delivery_id=$1 ORDER BY id`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNCRs(rows)
}

func scanNCRs(rows pgx.Rows) ([]NCR, error) {
	var out []NCR
	for rows.Next() {
		var n NCR
		if err := rows.Scan(&n.ID, &n.Type, &n.LocationID, &n.PeriodID, &n.DeliveryID,
			&n.ItemID, &n.Reason, &n.Value, &n.AutoGenerated, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// InsertTx writes an NCR inside an open movement transaction so the report
// commits or aborts together with the movement that produced it.
func InsertTx(ctx context.Context, tx pgx.Tx, n *NCR) error {
	return tx.QueryRow(ctx, insertNCRSQL,
		n.Type, n.LocationID, n.PeriodID, n.DeliveryID, n.ItemID,
		n.Reason, n.Value, n.AutoGenerated, n.CreatedBy,
	).Scan(&n.ID, &n.CreatedAt)
}
