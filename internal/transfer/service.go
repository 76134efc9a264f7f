package transfer

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

// TxRepository is the write surface of one transfer transaction.
type TxRepository interface {
	InsertTransfer(ctx context.Context, t *Transfer) error
	InsertLine(ctx context.Context, l *Line) error
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	GetLines(ctx context.Context, transferID int64) ([]Line, error)
	UpdateStatus(ctx context.Context, id int64, status Status, decidedBy *int64, decidedAt *time.Time) error
	StockLineForUpdate(ctx context.Context, locationID, itemID int64) (ledger.StockLine, error)
	SaveStockLine(ctx context.Context, line ledger.StockLine) error
}

// RepositoryPort opens transactions and serves reads.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetTransfer(ctx context.Context, id int64) (Transfer, []Line, error)
}

// StockReader reads stock lines outside a transaction. Request-time
// sufficiency checks use this; nothing is reserved.
type StockReader interface {
	GetLine(ctx context.Context, locationID, itemID int64) (ledger.StockLine, error)
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

// AuditPort records transfer events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Events publishes integration events after an approval commits. Optional.
type Events interface {
	TransferCompleted(ctx context.Context, tr *Transfer)
}

// LineInput is one item on a transfer request.
type LineInput struct {
	ItemID   int64 `validate:"required,gt=0"`
	Quantity decimal.Decimal
}

// RequestInput files a transfer for approval.
type RequestInput struct {
	FromLocationID int64       `validate:"required,gt=0"`
	ToLocationID   int64       `validate:"required,gt=0"`
	PeriodID       int64       `validate:"required,gt=0"`
	Reference      string      `validate:"required,max=100"`
	TransferDate   time.Time   `validate:"required"`
	IdempotencyKey string      `validate:"omitempty,max=100"`
	Lines          []LineInput `validate:"required,min=1,dive"`
}

// Service runs the transfer request and approval flow.
type Service struct {
	repo    RepositoryPort
	stock   StockReader
	guard   PeriodGuard
	idem    Idempotency
	audit   AuditPort
	events  Events
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewService(repo RepositoryPort, stock StockReader, guard PeriodGuard, idem Idempotency, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stock, guard: guard, idem: idem, audit: audit, metrics: metrics, logger: logger}
}

// SetEvents attaches an event publisher. Approvals work without one.
func (s *Service) SetEvents(ev Events) { s.events = ev }

// Request validates source stock sufficiency, freezes each line's source
// cost and files the transfer in PENDING_APPROVAL. No stock moves and no
// stock is reserved; approval re-validates under locks.
func (s *Service) Request(ctx context.Context, in RequestInput) (*Transfer, []Line, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return nil, nil, err
	}
	if in.FromLocationID == in.ToLocationID {
		return nil, nil, shared.NewValidation("transfer source and destination must differ").
			WithDetail("location_id", in.FromLocationID)
	}
	if err := validateLineAmounts(in.Lines); err != nil {
		return nil, nil, err
	}

	p, err := s.guard.EnsureOpenForPosting(ctx, in.PeriodID, in.FromLocationID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.guard.EnsureOpenForPosting(ctx, in.PeriodID, in.ToLocationID); err != nil {
		return nil, nil, err
	}
	if !p.Contains(in.TransferDate) {
		return nil, nil, shared.NewValidation("transfer date outside period").
			WithDetail("transfer_date", in.TransferDate.Format("2006-01-02")).
			WithDetail("period_id", in.PeriodID)
	}

	tr := &Transfer{
		FromLocationID: in.FromLocationID,
		ToLocationID:   in.ToLocationID,
		PeriodID:       in.PeriodID,
		Reference:      in.Reference,
		TransferDate:   in.TransferDate,
		Status:         StatusPendingApproval,
		TotalValue:     money.Zero,
	}
	if actorID := shared.ActorID(ctx); actorID != 0 {
		tr.RequestedBy = &actorID
	}

	lines := make([]Line, 0, len(in.Lines))
	for _, l := range in.Lines {
		stock, err := s.stock.GetLine(ctx, in.FromLocationID, l.ItemID)
		if err != nil {
			if err == ledger.ErrLineNotFound {
				return nil, nil, shared.NewInsufficientStock(in.FromLocationID, l.ItemID, l.Quantity.String(), "0")
			}
			return nil, nil, err
		}
		if l.Quantity.GreaterThan(stock.OnHand) {
			return nil, nil, shared.NewInsufficientStock(in.FromLocationID, l.ItemID, l.Quantity.String(), stock.OnHand.String())
		}
		line := Line{
			ItemID:        l.ItemID,
			Quantity:      l.Quantity,
			WACAtTransfer: stock.WAC,
			LineValue:     money.RoundValue(l.Quantity.Mul(stock.WAC)),
		}
		tr.TotalValue = tr.TotalValue.Add(line.LineValue)
		lines = append(lines, line)
	}

	idemKey := in.IdempotencyKey
	if idemKey == "" {
		idemKey = uuid.NewString()
	}
	if err := s.idem.CheckAndInsert(ctx, idemKey, "transfer"); err != nil {
		if err == shared.ErrIdempotencyConflict {
			return nil, nil, &shared.AppError{Code: shared.CodeIdempotency, Message: "transfer already requested for this key"}
		}
		return nil, nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertTransfer(ctx, tr); err != nil {
			return err
		}
		for i := range lines {
			lines[i].TransferID = tr.ID
			if err := tx.InsertLine(ctx, &lines[i]); err != nil {
				return err
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

	s.recordAudit(ctx, "transfer.requested", tr)
	s.logger.Info("transfer requested",
		slog.Int64("transfer_id", tr.ID),
		slog.Int64("from_location_id", tr.FromLocationID),
		slog.Int64("to_location_id", tr.ToLocationID),
		slog.String("total_value", tr.TotalValue.String()))
	return tr, lines, nil
}

// Approve atomically moves the stock. Every line is re-validated against
// the source under row locks; any shortfall aborts the whole approval and
// the transfer stays in PENDING_APPROVAL. On success the source lines are
// decremented, the destination receives each quantity at the frozen
// request-time cost, and the transfer becomes COMPLETED.
func (s *Service) Approve(ctx context.Context, transferID int64) (*Transfer, error) {
	start := time.Now()
	var tr Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		tr, err = tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if tr.Status != StatusPendingApproval {
			return shared.NewInvalidState("transfer", string(tr.Status), string(StatusCompleted))
		}
		if _, err := s.guard.EnsureOpenForPosting(ctx, tr.PeriodID, tr.FromLocationID); err != nil {
			return err
		}
		if _, err := s.guard.EnsureOpenForPosting(ctx, tr.PeriodID, tr.ToLocationID); err != nil {
			return err
		}

		lines, err := tx.GetLines(ctx, transferID)
		if err != nil {
			return err
		}

		locked, err := lockStockLines(ctx, tx, &tr, lines)
		if err != nil {
			return err
		}

		for _, l := range lines {
			src := locked[stockKey{tr.FromLocationID, l.ItemID}]
			if l.Quantity.GreaterThan(src.OnHand) {
				return shared.NewInsufficientStock(tr.FromLocationID, l.ItemID, l.Quantity.String(), src.OnHand.String())
			}
			src.OnHand = src.OnHand.Sub(l.Quantity)
			locked[stockKey{tr.FromLocationID, l.ItemID}] = src

			dst := locked[stockKey{tr.ToLocationID, l.ItemID}]
			if err := ledger.Receive(&dst, l.Quantity, l.WACAtTransfer); err != nil {
				return shared.NewConsistency("destination cost update failed").WithCause(err)
			}
			locked[stockKey{tr.ToLocationID, l.ItemID}] = dst
		}
		if err := saveStockLines(ctx, tx, locked); err != nil {
			return err
		}

		now := time.Now()
		tr.Status = StatusCompleted
		tr.DecidedAt = &now
		if actorID := shared.ActorID(ctx); actorID != 0 {
			tr.DecidedBy = &actorID
		}
		return tx.UpdateStatus(ctx, tr.ID, tr.Status, tr.DecidedBy, tr.DecidedAt)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MovementPosted("transfer", start)
	if s.events != nil {
		s.events.TransferCompleted(ctx, &tr)
	}
	s.recordAudit(ctx, "transfer.completed", &tr)
	s.logger.Info("transfer completed",
		slog.Int64("transfer_id", tr.ID),
		slog.Int64("from_location_id", tr.FromLocationID),
		slog.Int64("to_location_id", tr.ToLocationID))
	return &tr, nil
}

// Reject terminally declines a pending transfer. No ledger effect.
func (s *Service) Reject(ctx context.Context, transferID int64) (*Transfer, error) {
	var tr Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		tr, err = tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if tr.Status != StatusPendingApproval {
			return shared.NewInvalidState("transfer", string(tr.Status), string(StatusRejected))
		}
		now := time.Now()
		tr.Status = StatusRejected
		tr.DecidedAt = &now
		if actorID := shared.ActorID(ctx); actorID != 0 {
			tr.DecidedBy = &actorID
		}
		return tx.UpdateStatus(ctx, tr.ID, tr.Status, tr.DecidedBy, tr.DecidedAt)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "transfer.rejected", &tr)
	s.logger.Info("transfer rejected", slog.Int64("transfer_id", tr.ID))
	return &tr, nil
}

// Get returns a transfer with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, []Line, error) {
	return s.repo.GetTransfer(ctx, id)
}

type stockKey struct {
	locationID int64
	itemID     int64
}

// lockStockLines acquires every source and destination row in a global
// (location, item) order so two opposite transfers cannot deadlock.
func lockStockLines(ctx context.Context, tx TxRepository, tr *Transfer, lines []Line) (map[stockKey]ledger.StockLine, error) {
	keys := make([]stockKey, 0, len(lines)*2)
	seen := make(map[stockKey]bool, len(lines)*2)
	for _, l := range lines {
		for _, k := range []stockKey{{tr.FromLocationID, l.ItemID}, {tr.ToLocationID, l.ItemID}} {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].locationID != keys[b].locationID {
			return keys[a].locationID < keys[b].locationID
		}
		return keys[a].itemID < keys[b].itemID
	})

	locked := make(map[stockKey]ledger.StockLine, len(keys))
	for _, k := range keys {
		line, err := tx.StockLineForUpdate(ctx, k.locationID, k.itemID)
		if err != nil && err != ledger.ErrLineNotFound {
			return nil, err
		}
		locked[k] = line
	}
	return locked, nil
}

func saveStockLines(ctx context.Context, tx TxRepository, locked map[stockKey]ledger.StockLine) error {
	keys := make([]stockKey, 0, len(locked))
	for k := range locked {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].locationID != keys[b].locationID {
			return keys[a].locationID < keys[b].locationID
		}
		return keys[a].itemID < keys[b].itemID
	})
	for _, k := range keys {
		if err := tx.SaveStockLine(ctx, locked[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, tr *Transfer) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "transfer",
		EntityID: strconv.FormatInt(tr.ID, 10),
		Meta: map[string]any{
			"from_location_id": tr.FromLocationID,
			"to_location_id":   tr.ToLocationID,
			"period_id":        tr.PeriodID,
			"status":           string(tr.Status),
			"total_value":      tr.TotalValue.String(),
		},
	}); err != nil {
		s.logger.Error("audit record failed", slog.Any("error", err))
	}
}

func validateLineAmounts(lines []LineInput) error {
	seen := make(map[int64]bool, len(lines))
	for i, l := range lines {
		if !money.IsPositive(l.Quantity) {
			return shared.NewValidation("line quantity must be positive").
				WithDetail("line", i).WithDetail("item_id", l.ItemID)
		}
		if seen[l.ItemID] {
			return shared.NewValidation("duplicate item on transfer").
				WithDetail("item_id", l.ItemID)
		}
		seen[l.ItemID] = true
	}
	return nil
}
