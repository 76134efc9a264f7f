package recon

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/galley-erp/galley/internal/money"
	"github.com/galley-erp/galley/internal/observability"
	"github.com/galley-erp/galley/internal/period"
	"github.com/galley-erp/galley/internal/shared"
)

// RepositoryPort abstracts the reconciliation storage reads and writes.
type RepositoryPort interface {
	GetPersisted(ctx context.Context, periodID, locationID int64) (Reconciliation, bool, error)
	Persist(ctx context.Context, rec Reconciliation) error
	GetAdjustments(ctx context.Context, periodID, locationID int64) (Adjustments, error)
	SaveAdjustments(ctx context.Context, periodID, locationID int64, a Adjustments) error
	PriorClosingStock(ctx context.Context, periodID, locationID int64) (decimal.Decimal, bool, error)
	SumDeliveryLines(ctx context.Context, periodID, locationID int64) (decimal.Decimal, error)
	SumIssueLines(ctx context.Context, periodID, locationID int64) (decimal.Decimal, error)
	SumTransfersIn(ctx context.Context, locationID int64, from, to time.Time) (decimal.Decimal, error)
	SumTransfersOut(ctx context.Context, locationID int64, from, to time.Time) (decimal.Decimal, error)
	TotalMandays(ctx context.Context, periodID, locationID int64) (int64, error)
}

// StockValuer reads the live stock value at a location.
type StockValuer interface {
	LocationValue(ctx context.Context, locationID int64) (decimal.Decimal, error)
}

// PeriodPort reads period boundaries and the prior period.
type PeriodPort interface {
	GetPeriod(ctx context.Context, id int64) (period.Period, error)
	GetPreviousPeriod(ctx context.Context, periodID int64) (period.Period, error)
}

// Service computes reconciliations. Calculate is read-only and idempotent:
// with no intervening movements, repeated calls return identical figures.
type Service struct {
	repo    RepositoryPort
	stock   StockValuer
	periods PeriodPort
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewService(repo RepositoryPort, stock StockValuer, periods PeriodPort, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stock, periods: periods, metrics: metrics, logger: logger}
}

// Get returns the persisted reconciliation when one exists and otherwise
// computes a fresh view.
func (s *Service) Get(ctx context.Context, periodID, locationID int64) (Reconciliation, error) {
	rec, ok, err := s.repo.GetPersisted(ctx, periodID, locationID)
	if err != nil {
		return Reconciliation{}, err
	}
	if ok {
		return rec, nil
	}
	return s.Calculate(ctx, periodID, locationID)
}

// Calculate synthesizes the reconciliation from movement lines and the
// live stock ledger. Closing stock is a snapshot of current on-hand value,
// not a period-scoped figure.
func (s *Service) Calculate(ctx context.Context, periodID, locationID int64) (Reconciliation, error) {
	p, err := s.periods.GetPeriod(ctx, periodID)
	if err != nil {
		return Reconciliation{}, err
	}

	rec := Reconciliation{
		PeriodID:   periodID,
		LocationID: locationID,
		Source:     SourceComputed,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opening, err := s.openingStock(gctx, periodID, locationID)
		if err != nil {
			return err
		}
		rec.OpeningStock = opening
		return nil
	})
	g.Go(func() error {
		var err error
		rec.Receipts, err = s.repo.SumDeliveryLines(gctx, periodID, locationID)
		return err
	})
	g.Go(func() error {
		var err error
		rec.Issues, err = s.repo.SumIssueLines(gctx, periodID, locationID)
		return err
	})
	g.Go(func() error {
		var err error
		rec.TransfersIn, err = s.repo.SumTransfersIn(gctx, locationID, p.StartDate, p.EndDate)
		return err
	})
	g.Go(func() error {
		var err error
		rec.TransfersOut, err = s.repo.SumTransfersOut(gctx, locationID, p.StartDate, p.EndDate)
		return err
	})
	g.Go(func() error {
		value, err := s.stock.LocationValue(gctx, locationID)
		if err != nil {
			return err
		}
		rec.ClosingStock = money.RoundValue(value)
		return nil
	})
	g.Go(func() error {
		var err error
		rec.Adjustments, err = s.repo.GetAdjustments(gctx, periodID, locationID)
		return err
	})
	g.Go(func() error {
		var err error
		rec.TotalMandays, err = s.repo.TotalMandays(gctx, periodID, locationID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Reconciliation{}, err
	}

	rec.TotalAdjustments = rec.Adjustments.Total()
	rec.Consumption = Consumption(rec.OpeningStock, rec.Receipts, rec.TransfersIn,
		rec.ClosingStock, rec.TransfersOut, rec.TotalAdjustments)
	if rec.TotalMandays > 0 {
		cost := money.RoundValue(rec.Consumption.Div(money.FromInt(rec.TotalMandays)))
		rec.MandayCost = &cost
	}
	rec.ComputedAt = time.Now()

	s.metrics.ReconComputed()
	s.logger.Debug("reconciliation computed",
		slog.Int64("period_id", periodID),
		slog.Int64("location_id", locationID),
		slog.String("consumption", rec.Consumption.String()))
	return rec, nil
}

// Persist stores the current computed figures, typically at period close.
func (s *Service) Persist(ctx context.Context, periodID, locationID int64) (Reconciliation, error) {
	rec, err := s.Calculate(ctx, periodID, locationID)
	if err != nil {
		return Reconciliation{}, err
	}
	if err := s.repo.Persist(ctx, rec); err != nil {
		return Reconciliation{}, err
	}
	rec.Source = SourcePersisted
	return rec, nil
}

// SaveAdjustments records manual correction amounts for a period/location.
func (s *Service) SaveAdjustments(ctx context.Context, periodID, locationID int64, a Adjustments) error {
	for name, v := range map[string]decimal.Decimal{
		"back_charges":  a.BackCharges,
		"credits":       a.Credits,
		"condemnations": a.Condemnations,
	} {
		if money.IsNegative(v) {
			return shared.NewValidation("adjustment amount must not be negative").
				WithDetail("field", name).WithDetail("value", v.String())
		}
	}
	return s.repo.SaveAdjustments(ctx, periodID, locationID, a)
}

// openingStock reads the prior period's persisted closing stock; zero when
// there is no prior period or it was never reconciled.
func (s *Service) openingStock(ctx context.Context, periodID, locationID int64) (decimal.Decimal, error) {
	prev, err := s.periods.GetPreviousPeriod(ctx, periodID)
	if err != nil {
		if shared.CodeOf(err) == shared.CodeNotFound {
			return decimal.Zero, nil
		}
		return decimal.Decimal{}, err
	}
	closing, ok, err := s.repo.PriorClosingStock(ctx, prev.ID, locationID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	return closing, nil
}
