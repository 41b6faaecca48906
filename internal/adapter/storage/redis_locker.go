package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

type LockOptions struct {
	// Expiry releases a lock whose holder died
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:     10 * time.Second,
		Tries:      10,
		RetryDelay: 50 * time.Millisecond,
	}
}

// RedisLocker serializes ledger operations on a key across service instances.
// The wait is bounded by Tries x RetryDelay.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts LockOptions
}

func NewRedisLocker(client redis.UniversalClient, opts LockOptions) *RedisLocker {
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (port.Unlock, error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isLockContention(err) {
			return nil, domain.Busy(err, "%s is locked by another operation, retry later", key)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.Busy(ctxErr, "gave up waiting for %s", key)
		}
		return nil, domain.Internal(err, "acquire lock %s", key)
	}

	return func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if !ok {
			return fmt.Errorf("release lock %s: lock was not held or already expired", key)
		}
		return nil
	}, nil
}

func isLockContention(err error) bool {
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}
