package recon

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galley-erp/galley/internal/shared"
)

// MandayRepository records daily personnel counts, the denominator of the
// manday cost figure.
type MandayRepository struct {
	pool *pgxpool.Pool
}

func NewMandayRepository(pool *pgxpool.Pool) *MandayRepository {
	return &MandayRepository{pool: pool}
}

// Record upserts the headcount for one day. Re-submitting a day replaces
// the earlier count rather than adding to it.
func (r *MandayRepository) Record(ctx context.Context, periodID, locationID int64, day time.Time, headcount int64) error {
	if headcount < 0 {
		return shared.NewValidation("headcount must not be negative").
			WithDetail("headcount", headcount)
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO mandays (period_id, location_id, day, headcount, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (period_id, location_id, day) DO UPDATE SET headcount=EXCLUDED.headcount, updated_at=NOW()`,
		periodID, locationID, day, headcount)
	return err
}
