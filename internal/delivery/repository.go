package delivery

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galley-erp/galley/internal/ledger"
	"github.com/galley-erp/galley/internal/ncr"
	"github.com/galley-erp/galley/internal/platform/db"
	"github.com/galley-erp/galley/internal/shared"
)

// Repository is the pgx-backed implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, stock: ledger.NewTxQueries(tx)})
	})
}

// GetDelivery loads a posted delivery header and its lines.
func (r *Repository) GetDelivery(ctx context.Context, id int64) (Delivery, []Line, error) {
	var d Delivery
	err := r.pool.QueryRow(ctx, `SELECT id, location_id, period_id, supplier_id, reference,
 delivery_date, total_value, has_variance, posted_by, posted_at
FROM deliveries WHERE id=$1`, id).Scan(
		&d.ID, &d.LocationID, &d.PeriodID, &d.SupplierID, &d.Reference,
		&d.DeliveryDate, &d.TotalValue, &d.HasVariance, &d.PostedBy, &d.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, nil, shared.NewNotFound("delivery", id)
		}
		return Delivery{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, delivery_id, item_id, item_name, quantity,
 unit_price, period_price, line_value, variance_value, has_variance
FROM delivery_lines WHERE delivery_id=$1 ORDER BY id`, id)
	if err != nil {
		return Delivery{}, nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DeliveryID, &l.ItemID, &l.ItemName, &l.Quantity,
			&l.UnitPrice, &l.PeriodPrice, &l.LineValue, &l.VarianceValue, &l.HasVariance); err != nil {
			return Delivery{}, nil, err
		}
		lines = append(lines, l)
	}
	return d, lines, rows.Err()
}

type txRepo struct {
	tx    pgx.Tx
	stock *ledger.TxQueries
}

func (t *txRepo) InsertDelivery(ctx context.Context, d *Delivery) error {
	return t.tx.QueryRow(ctx, `INSERT INTO deliveries
 (location_id, period_id, supplier_id, reference, delivery_date, total_value, has_variance, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, posted_at`,
		d.LocationID, d.PeriodID, d.SupplierID, d.Reference, d.DeliveryDate,
		d.TotalValue, d.HasVariance, d.PostedBy,
	).Scan(&d.ID, &d.PostedAt)
}

func (t *txRepo) InsertLine(ctx context.Context, l *Line) error {
	return t.tx.QueryRow(ctx, `INSERT INTO delivery_lines
 (delivery_id, item_id, item_name, quantity, unit_price, period_price, line_value, variance_value, has_variance)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id`,
		l.DeliveryID, l.ItemID, l.ItemName, l.Quantity, l.UnitPrice,
		l.PeriodPrice, l.LineValue, l.VarianceValue, l.HasVariance,
	).Scan(&l.ID)
}

func (t *txRepo) StockLineForUpdate(ctx context.Context, locationID, itemID int64) (ledger.StockLine, error) {
	return t.stock.GetLineForUpdate(ctx, locationID, itemID)
}

func (t *txRepo) SaveStockLine(ctx context.Context, line ledger.StockLine) error {
	return t.stock.UpsertLine(ctx, line)
}

func (t *txRepo) InsertNCR(ctx context.Context, n *ncr.NCR) error {
	return ncr.InsertTx(ctx, t.tx, n)
}
