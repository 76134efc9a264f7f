package ncr

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/galley-erp/galley/internal/shared"
)

// RepositoryPort is what Service needs from storage.
type RepositoryPort interface {
	Insert(ctx context.Context, n *NCR) error
	ListByDelivery(ctx context.Context, deliveryID int64) ([]NCR, error)
}

// CreateInput is an operator-raised report.
type CreateInput struct {
	Type       Type   `validate:"required,oneof=QUALITY QUANTITY"`
	LocationID int64  `validate:"required,gt=0"`
	PeriodID   int64  `validate:"required,gt=0"`
	DeliveryID *int64 `validate:"omitempty,gt=0"`
	ItemID     *int64 `validate:"omitempty,gt=0"`
	Reason     string `validate:"required,min=3,max=1000"`
	Value      decimal.Decimal
}

// Service creates manually raised NCRs. Auto-generated price variance NCRs
// bypass this and are written inside the delivery transaction.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*NCR, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.Value.IsNegative() {
		return nil, shared.NewValidation("ncr value must not be negative").
			WithDetail("value", in.Value.String())
	}
	n := &NCR{
		Type:          in.Type,
		LocationID:    in.LocationID,
		PeriodID:      in.PeriodID,
		DeliveryID:    in.DeliveryID,
		ItemID:        in.ItemID,
		Reason:        in.Reason,
		Value:         in.Value,
		AutoGenerated: false,
	}
	if actorID := shared.ActorID(ctx); actorID != 0 {
		n.CreatedBy = &actorID
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Info("ncr created",
		slog.Int64("ncr_id", n.ID),
		slog.String("type", string(n.Type)),
		slog.Int64("location_id", n.LocationID))
	return n, nil
}

func (s *Service) ListByDelivery(ctx context.Context, deliveryID int64) ([]NCR, error) {
	return s.repo.ListByDelivery(ctx, deliveryID)
}
