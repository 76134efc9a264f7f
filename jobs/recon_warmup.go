package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/galley-erp/galley/internal/period"
	"github.com/galley-erp/galley/internal/recon"
)

// PeriodLocationLister supplies the open period locations to warm.
type PeriodLocationLister interface {
	ListOpenPeriodLocations(ctx context.Context) ([]period.PeriodLocation, error)
}

// NewReconWarmupHandler recomputes and caches the reconciliation for every
// open period location. A single failing location is logged and skipped so
// one bad dataset does not starve the rest.
func NewReconWarmupHandler(cache *recon.Cache, periods PeriodLocationLister, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScheduledPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		open, err := periods.ListOpenPeriodLocations(ctx)
		if err != nil {
			return err
		}
		warmed := 0
		for _, pl := range open {
			if err := cache.Warm(ctx, pl.PeriodID, pl.LocationID); err != nil {
				logger.Warn("recon warmup failed for location",
					slog.Int64("period_id", pl.PeriodID),
					slog.Int64("location_id", pl.LocationID),
					slog.Any("error", err))
				continue
			}
			warmed++
		}
		logger.Info("recon warmup finished",
			slog.Int("open_locations", len(open)),
			slog.Int("warmed", warmed))
		return nil
	}
}
