package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLow carries maintenance work that may wait behind everything else.
	QueueLow = "low"

	// TaskReconWarmup recomputes and caches reconciliations for every open
	// period location.
	TaskReconWarmup = "recon:warmup"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
	// TaskIntegrityScan checks the stock ledger for negative quantities or
	// costs.
	TaskIntegrityScan = "ledger:integrity_scan"
	// TaskNotifyNCRCreated emits a notification event for a new NCR.
	TaskNotifyNCRCreated = "notify:ncr_created"
	// TaskNotifyTransferCompleted emits a notification event for a
	// completed transfer.
	TaskNotifyTransferCompleted = "notify:transfer_completed"
)

// ScheduledPayload carries scheduling metadata for cron-driven tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReconWarmupTask constructs the warmup task.
func NewReconWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconWarmup, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueLow)), nil
}

// NewIntegrityScanTask constructs the integrity scan task.
func NewIntegrityScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, body, asynq.Queue(QueueLow)), nil
}

// NCRCreatedPayload identifies a freshly created NCR.
type NCRCreatedPayload struct {
	NCRID      int64  `json:"ncr_id"`
	Type       string `json:"type"`
	LocationID int64  `json:"location_id"`
	Value      string `json:"value"`
}

// NewNCRCreatedTask constructs a notification task for a new NCR.
func NewNCRCreatedTask(payload NCRCreatedPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyNCRCreated, body, asynq.Queue(QueueDefault)), nil
}

// TransferCompletedPayload identifies a completed transfer.
type TransferCompletedPayload struct {
	TransferID     int64  `json:"transfer_id"`
	FromLocationID int64  `json:"from_location_id"`
	ToLocationID   int64  `json:"to_location_id"`
	TotalValue     string `json:"total_value"`
}

// NewTransferCompletedTask constructs a notification task for a completed
// transfer.
func NewTransferCompletedTask(payload TransferCompletedPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyTransferCompleted, body, asynq.Queue(QueueDefault)), nil
}
