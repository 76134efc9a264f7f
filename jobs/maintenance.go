package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/galley-erp/galley/internal/ledger"
	"github.com/galley-erp/galley/internal/observability"
	"github.com/galley-erp/galley/internal/shared"
)

// NewIdempotencyCleanupHandler purges idempotency keys older than the
// retention window.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScheduledPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := store.Cleanup(ctx, retention); err != nil {
			return err
		}
		logger.Info("idempotency cleanup finished",
			slog.Duration("retention", retention))
		return nil
	}
}

// NewIntegrityScanHandler checks the stock ledger for lines violating the
// non-negative invariants. Violations are logged per line and exported as
// a gauge; the job itself succeeds so the schedule keeps running.
func NewIntegrityScanHandler(repo *ledger.Repository, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScheduledPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		bad, err := repo.ScanIntegrity(ctx)
		if err != nil {
			return err
		}
		for _, line := range bad {
			logger.Error("stock line violates invariants",
				slog.Int64("location_id", line.LocationID),
				slog.Int64("item_id", line.ItemID),
				slog.String("on_hand", line.OnHand.String()),
				slog.String("wac", line.WAC.String()))
		}
		metrics.IntegrityIssues(len(bad))
		if len(bad) == 0 {
			logger.Info("stock integrity scan clean")
		}
		return nil
	}
}
