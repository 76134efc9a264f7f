package issue

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
	"github.com/galley-erp/galley/internal/observability"
	"github.com/galley-erp/galley/internal/period"
	"github.com/galley-erp/galley/internal/shared"
)

// TxRepository is the write surface of one issue posting transaction.
type TxRepository interface {
	InsertIssue(ctx context.Context, is *Issue) error
	InsertLine(ctx context.Context, l *Line) error
	UpdateIssueTotal(ctx context.Context, issueID int64, total decimal.Decimal) error
	StockLineForUpdate(ctx context.Context, locationID, itemID int64) (ledger.StockLine, error)
	SaveStockLine(ctx context.Context, line ledger.StockLine) error
}

// RepositoryPort opens posting transactions and serves reads.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetIssue(ctx context.Context, id int64) (Issue, []Line, error)
}

// PeriodGuard checks that a period accepts postings for a location.
type PeriodGuard interface {
	EnsureOpenForPosting(ctx context.Context, periodID, locationID int64) (period.Period, error)
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

// LineInput is one consumed item on the posting request.
type LineInput struct {
	ItemID   int64 `validate:"required,gt=0"`
	Quantity decimal.Decimal
}

// PostInput is an issue posting request.
type PostInput struct {
	LocationID     int64       `validate:"required,gt=0"`
	PeriodID       int64       `validate:"required,gt=0"`
	Reference      string      `validate:"required,max=100"`
	IssueDate      time.Time   `validate:"required"`
	IdempotencyKey string      `validate:"omitempty,max=100"`
	Lines          []LineInput `validate:"required,min=1,dive"`
}

// ServiceConfig holds posting policy.
type ServiceConfig struct {
	// AllowNegativeStock permits issuing more than on hand. Off by default;
	// galleys that record consumption before deliveries land may enable it.
	AllowNegativeStock bool
}

// Service posts issue consumptions.
type Service struct {
	repo    RepositoryPort
	guard   PeriodGuard
	idem    Idempotency
	audit   AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger
	cfg     ServiceConfig
}

func NewService(repo RepositoryPort, guard PeriodGuard, idem Idempotency, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger, cfg ServiceConfig) *Service {
	return &Service{repo: repo, guard: guard, idem: idem, audit: audit, metrics: metrics, logger: logger, cfg: cfg}
}

// Post validates and commits one issue. Each line freezes the stock line's
// current weighted average cost and decrements on hand quantity; any
// failure leaves the ledger untouched.
func (s *Service) Post(ctx context.Context, in PostInput) (*Issue, []Line, error) {
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
	if !p.Contains(in.IssueDate) {
		return nil, nil, shared.NewValidation("issue date outside period").
			WithDetail("issue_date", in.IssueDate.Format("2006-01-02")).
			WithDetail("period_id", in.PeriodID)
	}

	idemKey := in.IdempotencyKey
	if idemKey == "" {
		idemKey = uuid.NewString()
	}
	if err := s.idem.CheckAndInsert(ctx, idemKey, "issue"); err != nil {
		if err == shared.ErrIdempotencyConflict {
			return nil, nil, &shared.AppError{Code: shared.CodeIdempotency, Message: "issue already posted for this key"}
		}
		return nil, nil, err
	}

	is := &Issue{
		LocationID: in.LocationID,
		PeriodID:   in.PeriodID,
		Reference:  in.Reference,
		IssueDate:  in.IssueDate,
		TotalValue: money.Zero,
	}
	if actorID := shared.ActorID(ctx); actorID != 0 {
		is.PostedBy = &actorID
	}

	sorted := append([]LineInput(nil), in.Lines...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].ItemID < sorted[b].ItemID })

	var lines []Line
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertIssue(ctx, is); err != nil {
			return err
		}
		for _, l := range sorted {
			stock, err := tx.StockLineForUpdate(ctx, in.LocationID, l.ItemID)
			if err != nil {
				if err == ledger.ErrLineNotFound && !s.cfg.AllowNegativeStock {
					return shared.NewInsufficientStock(in.LocationID, l.ItemID, l.Quantity.String(), "0")
				}
				if err != ledger.ErrLineNotFound {
					return err
				}
			}
			if l.Quantity.GreaterThan(stock.OnHand) && !s.cfg.AllowNegativeStock {
				return shared.NewInsufficientStock(in.LocationID, l.ItemID, l.Quantity.String(), stock.OnHand.String())
			}

			line := Line{
				IssueID:    is.ID,
				ItemID:     l.ItemID,
				Quantity:   l.Quantity,
				WACAtIssue: stock.WAC,
				LineValue:  money.RoundValue(l.Quantity.Mul(stock.WAC)),
			}
			stock.OnHand = stock.OnHand.Sub(l.Quantity)
			if err := tx.SaveStockLine(ctx, stock); err != nil {
				return err
			}
			if err := tx.InsertLine(ctx, &line); err != nil {
				return err
			}
			is.TotalValue = is.TotalValue.Add(line.LineValue)
			lines = append(lines, line)
		}
		return tx.UpdateIssueTotal(ctx, is.ID, is.TotalValue)
	})
	if err != nil {
		if delErr := s.idem.Delete(ctx, idemKey); delErr != nil {
			s.logger.Error("idempotency key cleanup failed",
				slog.String("key", idemKey), slog.Any("error", delErr))
		}
		return nil, nil, err
	}

	s.metrics.MovementPosted("issue", start)
	if auditErr := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   "issue.posted",
		Entity:   "issue",
		EntityID: strconv.FormatInt(is.ID, 10),
		Meta: map[string]any{
			"location_id": in.LocationID,
			"period_id":   in.PeriodID,
			"total_value": is.TotalValue.String(),
			"lines":       len(lines),
		},
	}); auditErr != nil {
		s.logger.Error("audit record failed", slog.Any("error", auditErr))
	}
	s.logger.Info("issue posted",
		slog.Int64("issue_id", is.ID),
		slog.Int64("location_id", in.LocationID),
		slog.String("total_value", is.TotalValue.String()))
	return is, lines, nil
}

// Get returns a posted issue with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Issue, []Line, error) {
	return s.repo.GetIssue(ctx, id)
}

func validateLineAmounts(lines []LineInput) error {
	seen := make(map[int64]bool, len(lines))
	for i, l := range lines {
		if !money.IsPositive(l.Quantity) {
			return shared.NewValidation("line quantity must be positive").
				WithDetail("line", i).WithDetail("item_id", l.ItemID)
		}
		if seen[l.ItemID] {
			return shared.NewValidation("duplicate item on issue").
				WithDetail("item_id", l.ItemID)
		}
		seen[l.ItemID] = true
	}
	return nil
}
