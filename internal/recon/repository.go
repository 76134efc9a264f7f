package recon

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads movement sums and persisted reconciliation rows.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPersisted loads a stored reconciliation row if one exists.
func (r *Repository) GetPersisted(ctx context.Context, periodID, locationID int64) (Reconciliation, bool, error) {
	var rec Reconciliation
	var mandayCost *decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT period_id, location_id, opening_stock, receipts,
 transfers_in, transfers_out, issues, closing_stock,
 back_charges, credits, condemnations, adjustments,
 consumption, total_mandays, manday_cost, computed_at
FROM reconciliations WHERE period_id=$1 AND location_id=$2`, periodID, locationID).Scan(
		&rec.PeriodID, &rec.LocationID, &rec.OpeningStock, &rec.Receipts,
		&rec.TransfersIn, &rec.TransfersOut, &rec.Issues, &rec.ClosingStock,
		&rec.Adjustments.BackCharges, &rec.Adjustments.Credits,
		&rec.Adjustments.Condemnations, &rec.Adjustments.Adjustments,
		&rec.Consumption, &rec.TotalMandays, &mandayCost, &rec.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reconciliation{}, false, nil
		}
		return Reconciliation{}, false, err
	}
	rec.Source = SourcePersisted
	rec.TotalAdjustments = rec.Adjustments.Total()
	rec.MandayCost = mandayCost
	return rec, true, nil
}

// Persist stores a computed reconciliation, replacing any prior row.
// Called at period close so the next period has an opening balance.
func (r *Repository) Persist(ctx context.Context, rec Reconciliation) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO reconciliations
 (period_id, location_id, opening_stock, receipts, transfers_in, transfers_out,
  issues, closing_stock, back_charges, credits, condemnations, adjustments,
  consumption, total_mandays, manday_cost, computed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW())
ON CONFLICT (period_id, location_id) DO UPDATE SET
 opening_stock=EXCLUDED.opening_stock, receipts=EXCLUDED.receipts,
 transfers_in=EXCLUDED.transfers_in, transfers_out=EXCLUDED.transfers_out,
 issues=EXCLUDED.issues, closing_stock=EXCLUDED.closing_stock,
 back_charges=EXCLUDED.back_charges, credits=EXCLUDED.credits,
 condemnations=EXCLUDED.condemnations, adjustments=EXCLUDED.adjustments,
 consumption=EXCLUDED.consumption, total_mandays=EXCLUDED.total_mandays,
 manday_cost=EXCLUDED.manday_cost, computed_at=NOW()`,
		rec.PeriodID, rec.LocationID, rec.OpeningStock, rec.Receipts,
		rec.TransfersIn, rec.TransfersOut, rec.Issues, rec.ClosingStock,
		rec.Adjustments.BackCharges, rec.Adjustments.Credits,
		rec.Adjustments.Condemnations, rec.Adjustments.Adjustments,
		rec.Consumption, rec.TotalMandays, rec.MandayCost)
	return err
}

// SaveAdjustments upserts the manual correction amounts for a period and
// location without touching computed figures.
func (r *Repository) SaveAdjustments(ctx context.Context, periodID, locationID int64, a Adjustments) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO recon_adjustments
 (period_id, location_id, back_charges, credits, condemnations, adjustments, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (period_id, location_id) DO UPDATE SET
 back_charges=EXCLUDED.back_charges, credits=EXCLUDED.credits,
 condemnations=EXCLUDED.condemnations, adjustments=EXCLUDED.adjustments, updated_at=NOW()`,
		periodID, locationID, a.BackCharges, a.Credits, a.Condemnations, a.Adjustments)
	return err
}

// GetAdjustments loads the manual corrections, zero when none recorded.
func (r *Repository) GetAdjustments(ctx context.Context, periodID, locationID int64) (Adjustments, error) {
	var a Adjustments
	err := r.pool.QueryRow(ctx, `SELECT back_charges, credits, condemnations, adjustments
FROM recon_adjustments WHERE period_id=$1 AND location_id=$2`, periodID, locationID).Scan(
		&a.BackCharges, &a.Credits, &a.Condemnations, &a.Adjustments)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustments{
				BackCharges:   decimal.Zero,
				Credits:       decimal.Zero,
				Condemnations: decimal.Zero,
				Adjustments:   decimal.Zero,
			}, nil
		}
		return Adjustments{}, err
	}
	return a, nil
}

// PriorClosingStock reads the persisted closing stock of the previous
// period. ok is false when no row was persisted.
func (r *Repository) PriorClosingStock(ctx context.Context, periodID, locationID int64) (decimal.Decimal, bool, error) {
	var closing decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT closing_stock FROM reconciliations
WHERE period_id=$1 AND location_id=$2`, periodID, locationID).Scan(&closing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return closing, true, nil
}

// SumDeliveryLines totals delivery line values for a period and location.
func (r *Repository) SumDeliveryLines(ctx context.Context, periodID, locationID int64) (decimal.Decimal, error) {
	return r.sum(ctx, `SELECT COALESCE(SUM(dl.line_value), 0)
FROM delivery_lines dl JOIN deliveries d ON d.id = dl.delivery_id
WHERE d.period_id=$1 AND d.location_id=$2`, periodID, locationID)
}

// SumIssueLines totals issue line values for a period and location.
func (r *Repository) SumIssueLines(ctx context.Context, periodID, locationID int64) (decimal.Decimal, error) {
	return r.sum(ctx, `SELECT COALESCE(SUM(il.line_value), 0)
FROM issue_lines il JOIN issues i ON i.id = il.issue_id
WHERE i.period_id=$1 AND i.location_id=$2`, periodID, locationID)
}

// SumTransfersIn totals completed inbound transfer values dated inside the
// period window.
func (r *Repository) SumTransfersIn(ctx context.Context, locationID int64, from, to time.Time) (decimal.Decimal, error) {
	return r.sumTransfers(ctx, `t.to_location_id`, locationID, from, to)
}

// SumTransfersOut totals completed outbound transfer values dated inside
// the period window.
func (r *Repository) SumTransfersOut(ctx context.Context, locationID int64, from, to time.Time) (decimal.Decimal, error) {
	return r.sumTransfers(ctx, `t.from_location_id`, locationID, from, to)
}

func (r *Repository) sumTransfers(ctx context.Context, locationColumn string, locationID int64, from, to time.Time) (decimal.Decimal, error) {
	return r.sum3(ctx, `SELECT COALESCE(SUM(tl.line_value), 0)
FROM transfer_lines tl JOIN transfers t ON t.id = tl.transfer_id
WHERE `+locationColumn+`=$1 AND t.status='COMPLETED' AND t.transfer_date BETWEEN $2 AND $3`,
		locationID, from, to)
}

// TotalMandays sums recorded personnel-count entries for the period.
func (r *Repository) TotalMandays(ctx context.Context, periodID, locationID int64) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(headcount), 0) FROM mandays
WHERE period_id=$1 AND location_id=$2`, periodID, locationID).Scan(&total)
	return total, err
}

func (r *Repository) sum(ctx context.Context, sql string, periodID, locationID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, sql, periodID, locationID).Scan(&total)
	return total, err
}

func (r *Repository) sum3(ctx context.Context, sql string, locationID int64, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, sql, locationID, from, to).Scan(&total)
	return total, err
}
