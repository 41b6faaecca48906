package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

func fastLockOptions() LockOptions {
	return LockOptions{Expiry: 5 * time.Second, Tries: 3, RetryDelay: 10 * time.Millisecond}
}

func TestRedisLocker_ContentionIsBusy(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisLocker(client, fastLockOptions())
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "lock:ledger:b1:d1")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "lock:ledger:b1:d1")
	assert.ErrorIs(t, err, domain.ErrBusy)

	other, err := locker.Lock(ctx, "lock:ledger:b1:d2")
	require.NoError(t, err, "different pairs do not contend")
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	again, err := locker.Lock(ctx, "lock:ledger:b1:d1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLocker_ExpiredLockCanBeTaken(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, fastLockOptions())
	ctx := context.Background()

	stale, err := locker.Lock(ctx, "lock:ledger:b1")
	require.NoError(t, err)
	mr.FastForward(6 * time.Second)

	fresh, err := locker.Lock(ctx, "lock:ledger:b1")
	require.NoError(t, err)
	assert.Error(t, stale(ctx), "the stale holder no longer owns the lock")
	require.NoError(t, fresh(ctx))
}

func TestRedisLocker_SerializesHolders(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisLocker(client, LockOptions{Expiry: 5 * time.Second, Tries: 200, RetryDelay: 5 * time.Millisecond})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "lock:ledger:shared")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			assert.NoError(t, unlock(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}
