package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/galley-erp/galley/internal/delivery"
	"github.com/galley-erp/galley/internal/issue"
	"github.com/galley-erp/galley/internal/ledger"
	"github.com/galley-erp/galley/internal/ncr"
	"github.com/galley-erp/galley/internal/observability"
	"github.com/galley-erp/galley/internal/period"
	"github.com/galley-erp/galley/internal/pricing"
	"github.com/galley-erp/galley/internal/recon"
	"github.com/galley-erp/galley/internal/shared"
	"github.com/galley-erp/galley/internal/transfer"
)

// Engine bundles the wired valuation services. The embedding process (ops
// binary, worker, or a host application) calls these directly; the engine
// itself exposes no transport.
type Engine struct {
	Periods    *period.Guard
	PeriodRepo *period.Repository
	Stock      *ledger.Repository
	Prices     *pricing.Repository
	Deliveries *delivery.Service
	Issues     *issue.Service
	Transfers  *transfer.Service
	NCRs       *ncr.Service
	Recon      *recon.Service
	ReconCache *recon.Cache
	Mandays    *recon.MandayRepository

	Idempotency *shared.IdempotencyStore
	Audit       *shared.AuditLogger
	Metrics     *observability.Metrics
}

// NewEngine wires every service against the shared pool and redis client.
func NewEngine(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) *Engine {
	metrics := observability.New()
	idem := shared.NewIdempotencyStore(pool)
	audit := shared.NewAuditLogger(pool)

	periodRepo := period.NewRepository(pool)
	guard := period.NewGuard(periodRepo)
	stockRepo := ledger.NewRepository(pool)
	priceRepo := pricing.NewRepository(pool)

	ncrService := ncr.NewService(ncr.NewRepository(pool), logger)
	deliveryService := delivery.NewService(
		delivery.NewRepository(pool), guard, priceRepo, idem, audit, metrics, logger)
	issueService := issue.NewService(
		issue.NewRepository(pool), guard, idem, audit, metrics, logger,
		issue.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock})
	transferService := transfer.NewService(
		transfer.NewRepository(pool), stockRepo, guard, idem, audit, metrics, logger)

	reconService := recon.NewService(recon.NewRepository(pool), stockRepo, periodRepo, metrics, logger)
	reconCache := recon.NewCache(reconService, redisClient, cfg.ReconCacheTTL, logger)

	return &Engine{
		Periods:     guard,
		PeriodRepo:  periodRepo,
		Stock:       stockRepo,
		Prices:      priceRepo,
		Deliveries:  deliveryService,
		Issues:      issueService,
		Transfers:   transferService,
		NCRs:        ncrService,
		Recon:       reconService,
		ReconCache:  reconCache,
		Mandays:     recon.NewMandayRepository(pool),
		Idempotency: idem,
		Audit:       audit,
		Metrics:     metrics,
	}
}
