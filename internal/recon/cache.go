package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersion = "v1"

// Cache wraps a Service with a redis read-through layer. Figures are safe
// to serve slightly stale; movements bump no versions, the TTL bounds the
// staleness window.
type Cache struct {
	svc    *Service
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCache(svc *Service, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{svc: svc, client: client, ttl: ttl, logger: logger}
}

func cacheKey(periodID, locationID int64) string {
	return fmt.Sprintf("recon:%s:%d:%d", cacheVersion, periodID, locationID)
}

// Get serves the reconciliation from redis when fresh, recomputing and
// repopulating on miss. Redis failures degrade to a direct computation.
func (c *Cache) Get(ctx context.Context, periodID, locationID int64) (Reconciliation, error) {
	key := cacheKey(periodID, locationID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var rec Reconciliation
		if err := json.Unmarshal(payload, &rec); err == nil {
			return rec, nil
		}
		c.logger.Warn("recon cache entry corrupt, recomputing", slog.String("key", key))
	} else if err != redis.Nil {
		c.logger.Warn("recon cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	rec, err := c.svc.Get(ctx, periodID, locationID)
	if err != nil {
		return Reconciliation{}, err
	}
	c.store(ctx, key, rec)
	return rec, nil
}

// Warm recomputes and stores the reconciliation regardless of cache state.
// The background warmup job calls this for every open period location.
func (c *Cache) Warm(ctx context.Context, periodID, locationID int64) error {
	rec, err := c.svc.Calculate(ctx, periodID, locationID)
	if err != nil {
		return err
	}
	c.store(ctx, cacheKey(periodID, locationID), rec)
	return nil
}

// SaveAdjustments stores manual correction amounts and drops the cached
// entry so the next read reflects them immediately instead of waiting out
// the TTL.
func (c *Cache) SaveAdjustments(ctx context.Context, periodID, locationID int64, a Adjustments) error {
	if err := c.svc.SaveAdjustments(ctx, periodID, locationID, a); err != nil {
		return err
	}
	c.Invalidate(ctx, periodID, locationID)
	return nil
}

// Invalidate drops the cached entry.
func (c *Cache) Invalidate(ctx context.Context, periodID, locationID int64) {
	if err := c.client.Del(ctx, cacheKey(periodID, locationID)).Err(); err != nil {
		c.logger.Warn("recon cache invalidation failed", slog.Any("error", err))
	}
}

func (c *Cache) store(ctx context.Context, key string, rec Reconciliation) {
	payload, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("recon cache marshal failed", slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("recon cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}
