package issue

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

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

// GetIssue loads a posted issue header and its lines.
func (r *Repository) GetIssue(ctx context.Context, id int64) (Issue, []Line, error) {
	var is Issue
	err := r.pool.QueryRow(ctx, `SELECT id, location_id, period_id, reference, issue_date,
 total_value, posted_by, posted_at
FROM issues WHERE id=$1`, id).Scan(
		&is.ID, &is.LocationID, &is.PeriodID, &is.Reference, &is.IssueDate,
		&is.TotalValue, &is.PostedBy, &is.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Issue{}, nil, shared.NewNotFound("issue", id)
		}
		return Issue{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, issue_id, item_id, quantity, wac_at_issue, line_value
FROM issue_lines WHERE issue_id=$1 ORDER BY id`, id)
	if err != nil {
		return Issue{}, nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.IssueID, &l.ItemID, &l.Quantity, &l.WACAtIssue, &l.LineValue); err != nil {
			return Issue{}, nil, err
		}
		lines = append(lines, l)
	}
	return is, lines, rows.Err()
}

type txRepo struct {
	tx    pgx.Tx
	stock *ledger.TxQueries
}

func (t *txRepo) InsertIssue(ctx context.Context, is *Issue) error {
	return t.tx.QueryRow(ctx, `INSERT INTO issues
 (location_id, period_id, reference, issue_date, total_value, posted_by)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, posted_at`,
		is.LocationID, is.PeriodID, is.Reference, is.IssueDate, is.TotalValue, is.PostedBy,
	).Scan(&is.ID, &is.PostedAt)
}

func (t *txRepo) InsertLine(ctx context.Context, l *Line) error {
	return t.tx.QueryRow(ctx, `INSERT INTO issue_lines
 (issue_id, item_id, quantity, wac_at_issue, line_value)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`,
		l.IssueID, l.ItemID, l.Quantity, l.WACAtIssue, l.LineValue,
	).Scan(&l.ID)
}

func (t *txRepo) UpdateIssueTotal(ctx context.Context, issueID int64, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE issues SET total_value=$2 WHERE id=$1`, issueID, total)
	return err
}

func (t *txRepo) StockLineForUpdate(ctx context.Context, locationID, itemID int64) (ledger.StockLine, error) {
	return t.stock.GetLineForUpdate(ctx, locationID, itemID)
}

func (t *txRepo) SaveStockLine(ctx context.Context, line ledger.StockLine) error {
	return t.stock.UpsertLine(ctx, line)
}
