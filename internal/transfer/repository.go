package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galley-erp/galley/internal/ledger"
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

const transferColumns = `id, from_location_id, to_location_id, period_id, reference,
 transfer_date, status, total_value, requested_by, requested_at, decided_by, decided_at`

// GetTransfer loads a transfer with its lines.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, []Line, error) {
	var t Transfer
	err := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id).Scan(
		&t.ID, &t.FromLocationID, &t.ToLocationID, &t.PeriodID, &t.Reference,
		&t.TransferDate, &t.Status, &t.TotalValue, &t.RequestedBy, &t.RequestedAt,
		&t.DecidedBy, &t.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, nil, shared.NewNotFound("transfer", id)
		}
		return Transfer{}, nil, err
	}

	lines, err := queryLines(ctx, r.pool, id)
	if err != nil {
		return Transfer{}, nil, err
	}
	return t, lines, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, transferID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, item_id, quantity, wac_at_transfer, line_value
FROM transfer_lines WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.TransferID, &l.ItemID, &l.Quantity, &l.WACAtTransfer, &l.LineValue); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type txRepo struct {
	tx    pgx.Tx
	stock *ledger.TxQueries
}

func (t *txRepo) InsertTransfer(ctx context.Context, tr *Transfer) error {
	return t.tx.QueryRow(ctx, `INSERT INTO transfers
 (from_location_id, to_location_id, period_id, reference, transfer_date, status, total_value, requested_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, requested_at`,
		tr.FromLocationID, tr.ToLocationID, tr.PeriodID, tr.Reference,
		tr.TransferDate, tr.Status, tr.TotalValue, tr.RequestedBy,
	).Scan(&tr.ID, &tr.RequestedAt)
}

func (t *txRepo) InsertLine(ctx context.Context, l *Line) error {
	return t.tx.QueryRow(ctx, `INSERT INTO transfer_lines
 (transfer_id, item_id, quantity, wac_at_transfer, line_value)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`,
		l.TransferID, l.ItemID, l.Quantity, l.WACAtTransfer, l.LineValue,
	).Scan(&l.ID)
}

func (t *txRepo) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	var tr Transfer
	err := t.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id).Scan(
		&tr.ID, &tr.FromLocationID, &tr.ToLocationID, &tr.PeriodID, &tr.Reference,
		&tr.TransferDate, &tr.Status, &tr.TotalValue, &tr.RequestedBy, &tr.RequestedAt,
		&tr.DecidedBy, &tr.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, shared.NewNotFound("transfer", id)
		}
		return Transfer{}, err
	}
	return tr, nil
}

func (t *txRepo) GetLines(ctx context.Context, transferID int64) ([]Line, error) {
	return queryLines(ctx, t.tx, transferID)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, decidedBy *int64, decidedAt *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE transfers SET status=$2, decided_by=$3, decided_at=$4 WHERE id=$1`,
		id, status, decidedBy, decidedAt)
	return err
}

func (t *txRepo) StockLineForUpdate(ctx context.Context, locationID, itemID int64) (ledger.StockLine, error) {
	return t.stock.GetLineForUpdate(ctx, locationID, itemID)
}

func (t *txRepo) SaveStockLine(ctx context.Context, line ledger.StockLine) error {
	return t.stock.UpsertLine(ctx, line)
}
