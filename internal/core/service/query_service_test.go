package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/benefit-ledger/internal/adapter/storage"
	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

func TestGetBenefit_UsesCacheUntilInvalidated(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, WithCache(cache))
	ctx := context.Background()
	b := f.createBenefit(t, 10)

	got, err := f.queries.GetBenefit(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.UnassignedStock)
	assert.Equal(t, 0, cache.hits)

	_, err = f.queries.GetBenefit(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = f.allocations.Assign(ctx, "d1", b.ID, 3)
	require.NoError(t, err)
	assert.Contains(t, cache.invalidated, b.ID)

	got, err = f.queries.GetBenefit(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.UnassignedStock)
}

func TestGetBenefit_NotFound(t *testing.T) {
	f := newFixture(t, WithCache(newFakeCache()))

	_, err := f.queries.GetBenefit(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.queries.GetBenefit(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListBenefitsAndAllocations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kits := f.createBenefit(t, 10)
	shoes := f.createBenefit(t, 5)
	_, err := f.allocations.Assign(ctx, "d1", kits.ID, 1)
	require.NoError(t, err)
	_, err = f.allocations.Assign(ctx, "d1", shoes.ID, 2)
	require.NoError(t, err)
	_, err = f.allocations.Assign(ctx, "d2", kits.ID, 3)
	require.NoError(t, err)

	benefits, err := f.queries.ListBenefits(ctx)
	require.NoError(t, err)
	assert.Len(t, benefits, 2)

	byDelegate, err := f.queries.ListAllocationsByDelegate(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, byDelegate, 2)

	byBenefit, err := f.queries.ListAllocationsByBenefit(ctx, kits.ID)
	require.NoError(t, err)
	require.Len(t, byBenefit, 2)
	assert.Equal(t, "d1", byBenefit[0].DelegateID)
	assert.Equal(t, "d2", byBenefit[1].DelegateID)

	a, err := f.queries.GetAllocation(ctx, "d2", shoes.ID)
	require.NoError(t, err)
	assert.True(t, a.IsZero())
}

// gatedStore holds GetBenefit until release is closed and then honours the
// caller's context the way a database driver does.
type gatedStore struct {
	*storage.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) GetBenefit(ctx context.Context, benefitID string) (domain.Benefit, error) {
	s.entered <- struct{}{}
	<-s.release
	if err := ctx.Err(); err != nil {
		return domain.Benefit{}, err
	}
	return s.MemoryStore.GetBenefit(ctx, benefitID)
}

func TestGetBenefit_SharedReadIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	b := f.createBenefit(t, 10)
	store := &gatedStore{MemoryStore: f.store, entered: make(chan struct{}, 1), release: make(chan struct{})}
	queries := NewQueryService(NewLedger(store, f.locker))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := queries.GetBenefit(ctx, b.ID)
		done <- err
	}()

	<-store.entered
	cancel()
	close(store.release)
	assert.NoError(t, <-done)
}

func TestGetBenefit_StaleFillAfterInvalidationIsRefused(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := storage.NewRedisAdapter(client, time.Minute)

	f := newFixture(t, WithCache(cache))
	ctx := context.Background()
	b := f.createBenefit(t, 10)

	// A reader loads the benefit, then an assignment commits and
	// invalidates before the reader gets to fill the cache.
	stale := f.benefit(t, b.ID)
	_, err := f.allocations.Assign(ctx, "d1", b.ID, 4)
	require.NoError(t, err)
	require.NoError(t, cache.SetBenefit(ctx, stale))

	got, err := f.queries.GetBenefit(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.UnassignedStock)
	assert.Equal(t, f.benefit(t, b.ID).Version, got.Version)

	cached, ok, err := cache.GetBenefit(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, ok, "fresh read refills the cache")
	assert.Equal(t, 6, cached.UnassignedStock)
}
