package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

const defaultLockWait = 2 * time.Second

// MemoryLocker is a keyed lock for a single process. Each key is a one-slot
// channel; waiters give up after wait.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
	wait  time.Duration
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &MemoryLocker{slots: make(map[string]*lockSlot), wait: wait}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (port.Unlock, error) {
	slot := l.acquireSlot(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
	case <-timer.C:
		l.releaseSlot(key)
		return nil, domain.Busy(nil, "%s is locked by another operation, retry later", key)
	case <-ctx.Done():
		l.releaseSlot(key)
		return nil, domain.Busy(ctx.Err(), "gave up waiting for %s", key)
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-slot.ch
			l.releaseSlot(key)
		})
		return nil
	}, nil
}

func (l *MemoryLocker) acquireSlot(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) releaseSlot(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot := l.slots[key]
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
