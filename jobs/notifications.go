package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Notification handlers emit structured events only. Delivery channels
// (mail, chat) subscribe to these logs downstream.

// NewNCRCreatedHandler processes TaskNotifyNCRCreated tasks.
func NewNCRCreatedHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NCRCreatedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("ncr created",
			slog.String("event", TaskNotifyNCRCreated),
			slog.Int64("ncr_id", payload.NCRID),
			slog.String("type", payload.Type),
			slog.Int64("location_id", payload.LocationID),
			slog.String("value", payload.Value))
		return nil
	}
}

// NewTransferCompletedHandler processes TaskNotifyTransferCompleted tasks.
func NewTransferCompletedHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload TransferCompletedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("transfer completed",
			slog.String("event", TaskNotifyTransferCompleted),
			slog.Int64("transfer_id", payload.TransferID),
			slog.Int64("from_location_id", payload.FromLocationID),
			slog.Int64("to_location_id", payload.ToLocationID),
			slog.String("total_value", payload.TotalValue))
		return nil
	}
}
