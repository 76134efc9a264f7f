package period

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galley-erp/galley/internal/shared"
)

// Repository reads period state from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPeriod loads a period by id.
func (r *Repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	var p Period
	err := r.pool.QueryRow(ctx, `SELECT id, code, start_date, end_date, status, created_at, updated_at
FROM periods WHERE id=$1`, id).
		Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.NewNotFound("period", id)
		}
		return Period{}, err
	}
	return p, nil
}

// GetPeriodLocation loads the per-location status row for a period.
func (r *Repository) GetPeriodLocation(ctx context.Context, periodID, locationID int64) (PeriodLocation, error) {
	var pl PeriodLocation
	err := r.pool.QueryRow(ctx, `SELECT period_id, location_id, status, updated_at
FROM period_locations WHERE period_id=$1 AND location_id=$2`, periodID, locationID).
		Scan(&pl.PeriodID, &pl.LocationID, &pl.Status, &pl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PeriodLocation{}, shared.NewNotFound("period_location", periodID).
				WithDetail("location_id", locationID)
		}
		return PeriodLocation{}, err
	}
	return pl, nil
}

// GetPreviousPeriod returns the most recently ended period before the given
// one, used to carry closing stock forward into opening stock.
func (r *Repository) GetPreviousPeriod(ctx context.Context, periodID int64) (Period, error) {
	var p Period
	err := r.pool.QueryRow(ctx, `SELECT prev.id, prev.code, prev.start_date, prev.end_date, prev.status, prev.created_at, prev.updated_at
FROM periods cur
JOIN periods prev ON prev.end_date < cur.start_date
WHERE cur.id=$1
ORDER BY prev.end_date DESC
LIMIT 1`, periodID).
		Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.NewNotFound("period", periodID).WithDetail("relation", "previous")
		}
		return Period{}, err
	}
	return p, nil
}

// ListOpenPeriodLocations returns every (period, location) pair currently
// open for posting. Used by the reconciliation warmup job.
func (r *Repository) ListOpenPeriodLocations(ctx context.Context) ([]PeriodLocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT pl.period_id, pl.location_id, pl.status, pl.updated_at
FROM period_locations pl
JOIN periods p ON p.id = pl.period_id
WHERE pl.status='OPEN' AND p.status='OPEN'
ORDER BY pl.period_id, pl.location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []PeriodLocation
	for rows.Next() {
		var pl PeriodLocation
		if err := rows.Scan(&pl.PeriodID, &pl.LocationID, &pl.Status, &pl.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, pl)
	}
	return result, rows.Err()
}
