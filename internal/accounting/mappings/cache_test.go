package mappings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute, nil), mr
}

type repoRunner struct{ repo Repository }

func (r repoRunner) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r.repo)
}

func TestCachedRepositoryReadsThrough(t *testing.T) {
	cache, _ := newTestCache(t)
	backing := newMemoryRepo(expenseMapping)
	repo := cache.Wrap(backing)
	ctx := context.Background()

	first, err := repo.Get(ctx, "C1", "EXPENSE_CREATE")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "C1", "EXPENSE_CREATE")
	require.NoError(t, err)
	require.Equal(t, first.DebitAccountID, second.DebitAccountID)
	require.Equal(t, 1, backing.gets)

	_, err = repo.Get(ctx, "C1", "UNKNOWN")
	require.ErrorIs(t, err, shared.ErrNoMappingFound)
	_, err = repo.Get(ctx, "C1", "UNKNOWN")
	require.ErrorIs(t, err, shared.ErrNoMappingFound)
	require.Equal(t, 3, backing.gets)
}

func TestServiceUpsertInvalidatesCache(t *testing.T) {
	cache, _ := newTestCache(t)
	backing := newMemoryRepo(expenseMapping)
	svc := NewService(repoRunner{repo: cache.Wrap(backing)}, cache, nil)
	ctx := context.Background()

	got, err := svc.Get(ctx, "C1", "EXPENSE_CREATE")
	require.NoError(t, err)
	require.Equal(t, "2000", got.CreditAccountID)

	updated := expenseMapping
	updated.CreditAccountID = "1000"
	_, err = svc.Upsert(ctx, updated)
	require.NoError(t, err)

	got, err = svc.Get(ctx, "C1", "EXPENSE_CREATE")
	require.NoError(t, err)
	require.Equal(t, "1000", got.CreditAccountID)
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	backing := newMemoryRepo(expenseMapping)
	repo := cache.Wrap(backing)
	mr.Close()

	got, err := repo.Get(context.Background(), "C1", "EXPENSE_CREATE")
	require.NoError(t, err)
	require.Equal(t, "5000", got.DebitAccountID)
}

func TestNilCacheIsPassThrough(t *testing.T) {
	var cache *Cache
	backing := newMemoryRepo(expenseMapping)
	require.Same(t, backing, cache.Wrap(backing))
	require.NoError(t, cache.Bump(context.Background(), "C1"))
}
