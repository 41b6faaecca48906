package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

func TestMemoryLocker_BoundedWait(t *testing.T) {
	locker := NewMemoryLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	start := time.Now()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx), "unlock is idempotent")

	again, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
	assert.Empty(t, locker.slots)
}

func TestMemoryLocker_HandsOverToWaiter(t *testing.T) {
	locker := NewMemoryLocker(time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		next, err := locker.Lock(ctx, "k")
		if err == nil {
			err = next(ctx)
		}
		acquired <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, unlock(ctx))
	assert.NoError(t, <-acquired)
}

func TestMemoryLocker_CancelledWaiter(t *testing.T) {
	locker := NewMemoryLocker(time.Second)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
