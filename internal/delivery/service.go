package delivery

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/galley-erp/galley/internal/ledger"
	"github.com/galley-erp/galley/internal/money"
	"github.com/galley-erp/galley/internal/ncr"
	"github.com/galley-erp/galley/internal/observability"
	"github.com/galley-erp/galley/internal/period"
	"github.com/galley-erp/galley/internal/pricing"
	"github.com/galley-erp/galley/internal/shared"
)

// TxRepository is the write surface available inside one posting
// transaction. Every write here commits or rolls back as a unit.
type TxRepository interface {
	InsertDelivery(ctx context.Context, d *Delivery) error
	InsertLine(ctx context.Context, l *Line) error
	StockLineForUpdate(ctx context.Context, locationID, itemID int64) (ledger.StockLine, error)
	SaveStockLine(ctx context.Context, line ledger.StockLine) error
	InsertNCR(ctx context.Context, n *ncr.NCR) error
}

// RepositoryPort opens posting transactions and serves reads.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetDelivery(ctx context.Context, id int64) (Delivery, []Line, error)
}

// PeriodGuard checks that a period accepts postings for a location.
type PeriodGuard interface {
	EnsureOpenForPosting(ctx context.Context, periodID, locationID int64) (period.Period, error)
}

// PriceLookup resolves locked period prices in bulk.
type PriceLookup interface {
	GetPrices(ctx context.Context, periodID int64, itemIDs []int64) (map[int64]decimal.Decimal, []int64, error)
}

// Idempotency guards against duplicate submissions.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records posting events after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Events publishes integration events after a posting commits. Optional.
type Events interface {
	NCRCreated(ctx context.Context, n *ncr.NCR)
}

// LineInput is one received item on the posting request.
type LineInput struct {
	ItemID    int64  `validate:"required,gt=0"`
	ItemName  string `validate:"required,max=200"`
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// PostInput is a delivery receipt posting request.
type PostInput struct {
	LocationID     int64       `validate:"required,gt=0"`
	PeriodID       int64       `validate:"required,gt=0"`
	SupplierID     *int64      `validate:"omitempty,gt=0"`
	Reference      string      `validate:"required,max=100"`
	DeliveryDate   time.Time   `validate:"required"`
	IdempotencyKey string      `validate:"omitempty,max=100"`
	Lines          []LineInput `validate:"required,min=1,dive"`
}

// Service posts delivery receipts.
type Service struct {
	repo    RepositoryPort
	guard   PeriodGuard
	prices  PriceLookup
	idem    Idempotency
	audit   AuditPort
	events  Events
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewService(repo RepositoryPort, guard PeriodGuard, prices PriceLookup, idem Idempotency, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, guard: guard, prices: prices, idem: idem, audit: audit, metrics: metrics, logger: logger}
}

// SetEvents attaches an event publisher. Postings work without one.
func (s *Service) SetEvents(ev Events) { s.events = ev }

// Post validates and commits one delivery receipt. All stock line updates,
// the header, the lines and any auto-generated price variance NCRs land in
// a single transaction; any failure leaves the ledger untouched.
func (s *Service) Post(ctx context.Context, in PostInput) (*Delivery, []Line, error) {
	start := time.Now()
	if err := shared.ValidateStruct(in); err != nil {
		return nil, nil, err
	}
	if err := validateLineAmounts(in.Lines); err != nil {
		return nil, nil, err
	}

	p, err := s.guard.EnsureOpenForPosting(ctx, in.PeriodID, in.LocationID)
	if err != nil {
		return nil, nil, err
	}
	if !p.Contains(in.DeliveryDate) {
		return nil, nil, shared.NewValidation("delivery date outside period").
			WithDetail("delivery_date", in.DeliveryDate.Format("2006-01-02")).
			WithDetail("period_id", in.PeriodID)
	}

	// Fail closed before any write: every line item needs a locked price.
	itemIDs := make([]int64, 0, len(in.Lines))
	for _, l := range in.Lines {
		itemIDs = append(itemIDs, l.ItemID)
	}
	priceMap, missing, err := s.prices.GetPrices(ctx, in.PeriodID, itemIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(missing) > 0 {
		return nil, nil, shared.NewMissingPeriodPrice(in.PeriodID, missing)
	}

	// A caller-supplied key deduplicates retries; otherwise each posting
	// records a generated one so the key table covers every movement.
	idemKey := in.IdempotencyKey
	if idemKey == "" {
		idemKey = uuid.NewString()
	}
	if err := s.idem.CheckAndInsert(ctx, idemKey, "delivery"); err != nil {
		if err == shared.ErrIdempotencyConflict {
			return nil, nil, &shared.AppError{Code: shared.CodeIdempotency, Message: "delivery already posted for this key"}
		}
		return nil, nil, err
	}

	d := &Delivery{
		LocationID:   in.LocationID,
		PeriodID:     in.PeriodID,
		SupplierID:   in.SupplierID,
		Reference:    in.Reference,
		DeliveryDate: in.DeliveryDate,
		TotalValue:   money.Zero,
	}
	if actorID := shared.ActorID(ctx); actorID != 0 {
		d.PostedBy = &actorID
	}

	lines := make([]Line, 0, len(in.Lines))
	for _, l := range in.Lines {
		v := pricing.Detect(l.UnitPrice, priceMap[l.ItemID], l.Quantity)
		line := Line{
			ItemID:        l.ItemID,
			ItemName:      l.ItemName,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			PeriodPrice:   priceMap[l.ItemID],
			LineValue:     money.RoundValue(l.Quantity.Mul(l.UnitPrice)),
			VarianceValue: v.Value,
			HasVariance:   v.Detected(),
		}
		d.TotalValue = d.TotalValue.Add(line.LineValue)
		if line.HasVariance {
			d.HasVariance = true
		}
		lines = append(lines, line)
	}

	// Lock stock lines in item order so concurrent postings against the
	// same location cannot deadlock.
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return lines[order[a]].ItemID < lines[order[b]].ItemID })

	var reports []*ncr.NCR
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reports = reports[:0]
		if err := tx.InsertDelivery(ctx, d); err != nil {
			return err
		}
		for _, i := range order {
			line := &lines[i]
			line.DeliveryID = d.ID

			stock, err := tx.StockLineForUpdate(ctx, in.LocationID, line.ItemID)
			if err != nil && err != ledger.ErrLineNotFound {
				return err
			}
			if err := ledger.Receive(&stock, line.Quantity, line.UnitPrice); err != nil {
				return shared.NewConsistency("weighted average cost update failed").WithCause(err)
			}
			if err := tx.SaveStockLine(ctx, stock); err != nil {
				return err
			}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
			if line.HasVariance {
				itemID := line.ItemID
				report := &ncr.NCR{
					Type:          ncr.TypePriceVariance,
					LocationID:    in.LocationID,
					PeriodID:      in.PeriodID,
					DeliveryID:    &d.ID,
					ItemID:        &itemID,
					Reason:        pricing.VarianceReason(line.ItemName, line.UnitPrice, line.PeriodPrice),
					Value:         line.VarianceValue,
					AutoGenerated: true,
					CreatedBy:     d.PostedBy,
				}
				if err := tx.InsertNCR(ctx, report); err != nil {
					return err
				}
				reports = append(reports, report)
			}
		}
		return nil
	})
	if err != nil {
		if delErr := s.idem.Delete(ctx, idemKey); delErr != nil {
			s.logger.Error("idempotency key cleanup failed",
				slog.String("key", idemKey), slog.Any("error", delErr))
		}
		return nil, nil, err
	}

	s.metrics.MovementPosted("delivery", start)
	for _, report := range reports {
		s.metrics.NCRCreated(string(report.Type), "auto")
		if s.events != nil {
			s.events.NCRCreated(ctx, report)
		}
	}
	if auditErr := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   "delivery.posted",
		Entity:   "delivery",
		EntityID: strconv.FormatInt(d.ID, 10),
		Meta: map[string]any{
			"location_id":  in.LocationID,
			"period_id":    in.PeriodID,
			"total_value":  d.TotalValue.String(),
			"has_variance": d.HasVariance,
			"lines":        len(lines),
		},
	}); auditErr != nil {
		s.logger.Error("audit record failed", slog.Any("error", auditErr))
	}
	s.logger.Info("delivery posted",
		slog.Int64("delivery_id", d.ID),
		slog.Int64("location_id", in.LocationID),
		slog.String("total_value", d.TotalValue.String()),
		slog.Bool("has_variance", d.HasVariance))
	return d, lines, nil
}

// Get returns a posted delivery with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Delivery, []Line, error) {
	return s.repo.GetDelivery(ctx, id)
}

func validateLineAmounts(lines []LineInput) error {
	seen := make(map[int64]bool, len(lines))
	for i, l := range lines {
		if !money.IsPositive(l.Quantity) {
			return shared.NewValidation("line quantity must be positive").
				WithDetail("line", i).WithDetail("item_id", l.ItemID)
		}
		if money.IsNegative(l.UnitPrice) {
			return shared.NewValidation("line unit price must not be negative").
				WithDetail("line", i).WithDetail("item_id", l.ItemID)
		}
		if seen[l.ItemID] {
			return shared.NewValidation("duplicate item on delivery").
				WithDetail("item_id", l.ItemID)
		}
		seen[l.ItemID] = true
	}
	return nil
}
