package period

import (
	"context"

	"github.com/galley-erp/galley/internal/shared"
)

// RepositoryPort abstracts period reads for the guard.
type RepositoryPort interface {
	GetPeriod(ctx context.Context, id int64) (Period, error)
	GetPeriodLocation(ctx context.Context, periodID, locationID int64) (PeriodLocation, error)
	GetPreviousPeriod(ctx context.Context, periodID int64) (Period, error)
}

// Guard validates that a period accepts postings for a location. Every
// movement transaction calls this before touching the stock ledger.
type Guard struct {
	repo RepositoryPort
}

// NewGuard constructs Guard.
func NewGuard(repo RepositoryPort) *Guard {
	return &Guard{repo: repo}
}

// EnsureOpenForPosting returns the period when both the period itself and
// its per-location status are OPEN, and a PERIOD_NOT_OPEN precondition
// error otherwise.
func (g *Guard) EnsureOpenForPosting(ctx context.Context, periodID, locationID int64) (Period, error) {
	p, err := g.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return Period{}, err
	}
	if p.Status != StatusOpen {
		return Period{}, shared.NewPeriodNotOpen(periodID, locationID, string(p.Status))
	}
	pl, err := g.repo.GetPeriodLocation(ctx, periodID, locationID)
	if err != nil {
		return Period{}, err
	}
	if pl.Status != LocationOpen {
		return Period{}, shared.NewPeriodNotOpen(periodID, locationID, string(pl.Status))
	}
	return p, nil
}

// Previous exposes the prior-period lookup for the reconciliation
// calculator. A missing prior period is not an error for callers; they
// translate it into a zero opening balance.
func (g *Guard) Previous(ctx context.Context, periodID int64) (Period, error) {
	return g.repo.GetPreviousPeriod(ctx, periodID)
}
