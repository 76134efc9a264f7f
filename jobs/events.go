package jobs

import (
	"context"
	"log/slog"

	"github.com/galley-erp/galley/internal/ncr"
	"github.com/galley-erp/galley/internal/transfer"
)

// EventPublisher adapts the queue client to the movement services' event
// ports. Enqueue failures are logged and swallowed; the movement has
// already committed and must not fail on notification plumbing.
type EventPublisher struct {
	client *Client
	logger *slog.Logger
}

func NewEventPublisher(client *Client, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{client: client, logger: logger}
}

// NCRCreated publishes a notification task for a freshly created NCR.
func (p *EventPublisher) NCRCreated(ctx context.Context, n *ncr.NCR) {
	_, err := p.client.EnqueueNCRCreated(ctx, NCRCreatedPayload{
		NCRID:      n.ID,
		Type:       string(n.Type),
		LocationID: n.LocationID,
		Value:      n.Value.String(),
	})
	if err != nil {
		p.logger.Warn("enqueue ncr created event failed",
			slog.Int64("ncr_id", n.ID), slog.Any("error", err))
	}
}

// TransferCompleted publishes a notification task for a completed transfer.
func (p *EventPublisher) TransferCompleted(ctx context.Context, tr *transfer.Transfer) {
	_, err := p.client.EnqueueTransferCompleted(ctx, TransferCompletedPayload{
		TransferID:     tr.ID,
		FromLocationID: tr.FromLocationID,
		ToLocationID:   tr.ToLocationID,
		TotalValue:     tr.TotalValue.String(),
	})
	if err != nil {
		p.logger.Warn("enqueue transfer completed event failed",
			slog.Int64("transfer_id", tr.ID), slog.Any("error", err))
	}
}
