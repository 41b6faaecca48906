package port

import "context"

type Unlock func(ctx context.Context) error

type Locker interface {
	// Lock waits a bounded time for key and returns domain.ErrBusy when it
	// cannot be acquired
	Lock(ctx context.Context, key string) (Unlock, error)
}
