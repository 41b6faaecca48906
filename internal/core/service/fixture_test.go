package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rl1809/benefit-ledger/internal/adapter/directory"
	"github.com/rl1809/benefit-ledger/internal/adapter/storage"
	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// recordingSink keeps emitted audit events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, e domain.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) kinds() []domain.AuditKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditKind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

// fakeCache is an in-memory CacheRepository that counts lookups.
type fakeCache struct {
	mu          sync.Mutex
	benefits    map[string]domain.Benefit
	keys        map[string]bool
	hits        int
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{benefits: make(map[string]domain.Benefit), keys: make(map[string]bool)}
}

func (c *fakeCache) GetBenefit(_ context.Context, id string) (domain.Benefit, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.benefits[id]
	if ok {
		c.hits++
	}
	return b, ok, nil
}

func (c *fakeCache) SetBenefit(_ context.Context, b domain.Benefit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.benefits[b.ID] = b
	return nil
}

func (c *fakeCache) InvalidateBenefit(_ context.Context, id string, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.benefits, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

func (c *fakeCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *fakeCache) ReleaseIdempotency(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

type fixture struct {
	store       *storage.MemoryStore
	locker      *storage.MemoryLocker
	dir         *directory.MemoryDirectory
	audit       *recordingSink
	ledger      *Ledger
	catalog     *CatalogService
	allocations *AllocationService
	deliveries  *DeliveryService
	queries     *QueryService
	checker     *InvariantChecker
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  storage.NewMemoryStore(),
		locker: storage.NewMemoryLocker(2 * time.Second),
		dir:    directory.NewMemoryDirectory(),
		audit:  &recordingSink{},
	}
	f.dir.PutDelegate("d1", true)
	f.dir.PutDelegate("d2", true)
	f.dir.PutDelegate("retired-delegate", false)
	f.dir.PutAffiliate("a1")
	f.dir.PutChild("c1", "a1")

	var seq int
	var seqMu sync.Mutex
	base := []Option{
		WithAuditSink(f.audit),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	}
	f.ledger = NewLedger(f.store, f.locker, append(base, opts...)...)
	f.wire(f.dir)
	return f
}

func (f *fixture) wire(dir port.Directory) {
	f.catalog = NewCatalogService(f.ledger)
	f.allocations = NewAllocationService(f.ledger, dir)
	f.deliveries = NewDeliveryService(f.ledger, dir)
	f.queries = NewQueryService(f.ledger)
	f.checker = NewInvariantChecker(f.ledger)
}

func (f *fixture) createBenefit(t *testing.T, stock int) domain.Benefit {
	t.Helper()
	b, err := f.catalog.CreateBenefit(context.Background(), CreateBenefitRequest{
		Name:         "School kit",
		Category:     "education",
		AgeRange:     domain.AgeRange{Min: 6, Max: 12},
		InitialStock: stock,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) benefit(t *testing.T, id string) domain.Benefit {
	t.Helper()
	b, err := f.store.GetBenefit(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) allocation(t *testing.T, delegateID, benefitID string) domain.Allocation {
	t.Helper()
	a, err := f.store.GetAllocation(context.Background(), delegateID, benefitID)
	require.NoError(t, err)
	return a
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	violations, err := f.checker.Check(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, violations)
}

func affiliate(id string) domain.Recipient {
	return domain.Recipient{Type: domain.RecipientAffiliate, ID: id}
}
