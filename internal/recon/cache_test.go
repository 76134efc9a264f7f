package recon

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/galley-erp/galley/internal/money"
)

func newTestCache(t *testing.T, env *testEnv) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCache(env.svc, client, 10*time.Minute, logger), mr
}

func TestCacheServesStoredFiguresUntilInvalidated(t *testing.T) {
	env := newTestEnv()
	env.repo.deliverySums[key{3, 1}] = money.Must("100")
	cache, _ := newTestCache(t, env)
	ctx := context.Background()

	first, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)
	require.True(t, first.Receipts.Equal(money.Must("100")))

	// A new delivery lands; the cached figures stay until TTL or
	// invalidation.
	env.repo.deliverySums[key{3, 1}] = money.Must("300")
	cached, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)
	require.True(t, cached.Receipts.Equal(money.Must("100")), "receipts %s", cached.Receipts)

	cache.Invalidate(ctx, 3, 1)
	fresh, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)
	require.True(t, fresh.Receipts.Equal(money.Must("300")))
}

func TestCacheExpiryRecomputes(t *testing.T) {
	env := newTestEnv()
	env.repo.deliverySums[key{3, 1}] = money.Must("100")
	cache, mr := newTestCache(t, env)
	ctx := context.Background()

	_, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)

	env.repo.deliverySums[key{3, 1}] = money.Must("500")
	mr.FastForward(11 * time.Minute)

	rec, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)
	require.True(t, rec.Receipts.Equal(money.Must("500")))
}

func TestSaveAdjustmentsDropsCachedEntry(t *testing.T) {
	env := newTestEnv()
	env.repo.deliverySums[key{3, 1}] = money.Must("100")
	cache, _ := newTestCache(t, env)
	ctx := context.Background()

	first, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)
	require.True(t, first.Adjustments.Total().IsZero())

	err = cache.SaveAdjustments(ctx, 3, 1, Adjustments{
		BackCharges: money.Must("80"),
	})
	require.NoError(t, err)

	// The supervisor's edit is visible on the very next read.
	fresh, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)
	require.True(t, fresh.Adjustments.BackCharges.Equal(money.Must("80")))
}

func TestSaveAdjustmentsValidationLeavesCacheIntact(t *testing.T) {
	env := newTestEnv()
	env.repo.deliverySums[key{3, 1}] = money.Must("100")
	cache, mr := newTestCache(t, env)
	ctx := context.Background()

	_, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)

	err = cache.SaveAdjustments(ctx, 3, 1, Adjustments{
		Credits: money.Must("-5"),
	})
	require.Error(t, err)
	require.True(t, mr.Exists("recon:v1:3:1"))
}

func TestWarmPopulatesCache(t *testing.T) {
	env := newTestEnv()
	env.repo.deliverySums[key{3, 1}] = money.Must("42")
	cache, _ := newTestCache(t, env)
	ctx := context.Background()

	require.NoError(t, cache.Warm(ctx, 3, 1))

	env.repo.deliverySums[key{3, 1}] = money.Must("900")
	rec, err := cache.Get(ctx, 3, 1)
	require.NoError(t, err)
	require.True(t, rec.Receipts.Equal(money.Must("42")), "warm entry must be served")
}
