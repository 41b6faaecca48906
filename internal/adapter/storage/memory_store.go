package storage

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

type allocationKey struct {
	delegateID string
	benefitID  string
}

type memoryState struct {
	benefits    map[string]domain.Benefit
	allocations map[allocationKey]domain.Allocation
	deliveries  map[string]domain.Delivery
}

func (s memoryState) clone() memoryState {
	return memoryState{
		benefits:    maps.Clone(s.benefits),
		allocations: maps.Clone(s.allocations),
		deliveries:  maps.Clone(s.deliveries),
	}
}

// MemoryStore is a single-process LedgerStore. Transactions run one at a time
// against a copy of the state that replaces it on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		benefits:    make(map[string]domain.Benefit),
		allocations: make(map[allocationKey]domain.Allocation),
		deliveries:  make(map[string]domain.Delivery),
	}}
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return contextError(err, "begin tx")
	}
	work := m.state.clone()
	if err := fn(ctx, &memoryTx{memoryReader{state: work}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return contextError(err, "commit tx")
	}
	m.state = work
	return nil
}

func (m *MemoryStore) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, r port.LedgerReader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(ctx, memoryReader{state: m.state})
}

func (m *MemoryStore) reader() memoryReader {
	return memoryReader{state: m.state}
}

func (m *MemoryStore) GetBenefit(ctx context.Context, benefitID string) (domain.Benefit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reader().GetBenefit(ctx, benefitID)
}

func (m *MemoryStore) ListBenefits(ctx context.Context) ([]domain.Benefit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reader().ListBenefits(ctx)
}

func (m *MemoryStore) GetAllocation(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reader().GetAllocation(ctx, delegateID, benefitID)
}

func (m *MemoryStore) ListAllocationsByDelegate(ctx context.Context, delegateID string) ([]domain.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reader().ListAllocationsByDelegate(ctx, delegateID)
}

func (m *MemoryStore) ListAllocationsByBenefit(ctx context.Context, benefitID string) ([]domain.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reader().ListAllocationsByBenefit(ctx, benefitID)
}

func (m *MemoryStore) GetDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reader().GetDelivery(ctx, deliveryID)
}

func (m *MemoryStore) ListDeliveries(ctx context.Context, filter domain.DeliveryFilter) ([]domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reader().ListDeliveries(ctx, filter)
}

type memoryReader struct {
	state memoryState
}

func (r memoryReader) GetBenefit(_ context.Context, benefitID string) (domain.Benefit, error) {
	b, ok := r.state.benefits[benefitID]
	if !ok {
		return domain.Benefit{}, domain.NotFound("benefit %s not found", benefitID)
	}
	return b, nil
}

func (r memoryReader) ListBenefits(context.Context) ([]domain.Benefit, error) {
	out := slices.Collect(maps.Values(r.state.benefits))
	slices.SortFunc(out, func(a, b domain.Benefit) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r memoryReader) GetAllocation(_ context.Context, delegateID, benefitID string) (domain.Allocation, error) {
	a, ok := r.state.allocations[allocationKey{delegateID, benefitID}]
	if !ok {
		return domain.NewAllocation(delegateID, benefitID), nil
	}
	return a, nil
}

func (r memoryReader) ListAllocationsByDelegate(_ context.Context, delegateID string) ([]domain.Allocation, error) {
	return r.allocations(func(a domain.Allocation) bool { return a.DelegateID == delegateID }), nil
}

func (r memoryReader) ListAllocationsByBenefit(_ context.Context, benefitID string) ([]domain.Allocation, error) {
	return r.allocations(func(a domain.Allocation) bool { return a.BenefitID == benefitID }), nil
}

func (r memoryReader) allocations(keep func(domain.Allocation) bool) []domain.Allocation {
	var out []domain.Allocation
	for _, a := range r.state.allocations {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Allocation) int {
		return cmp.Or(cmp.Compare(a.BenefitID, b.BenefitID), cmp.Compare(a.DelegateID, b.DelegateID))
	})
	return out
}

func (r memoryReader) GetDelivery(_ context.Context, deliveryID string) (domain.Delivery, error) {
	d, ok := r.state.deliveries[deliveryID]
	if !ok {
		return domain.Delivery{}, domain.NotFound("delivery %s not found", deliveryID)
	}
	return d, nil
}

func (r memoryReader) ListDeliveries(_ context.Context, filter domain.DeliveryFilter) ([]domain.Delivery, error) {
	var out []domain.Delivery
	for _, d := range r.state.deliveries {
		if filter.Matches(d) {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b domain.Delivery) int {
		return cmp.Or(a.DeliveredAt.Compare(b.DeliveredAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

type memoryTx struct {
	memoryReader
}

func (t *memoryTx) InsertBenefit(_ context.Context, benefit domain.Benefit) error {
	if _, ok := t.state.benefits[benefit.ID]; ok {
		return domain.Conflict("benefit %s already exists", benefit.ID)
	}
	t.state.benefits[benefit.ID] = benefit
	return nil
}

func (t *memoryTx) LockBenefit(ctx context.Context, benefitID string) (domain.Benefit, error) {
	return t.GetBenefit(ctx, benefitID)
}

func (t *memoryTx) UpdateBenefit(_ context.Context, benefit domain.Benefit) error {
	current, ok := t.state.benefits[benefit.ID]
	if !ok {
		return domain.NotFound("benefit %s not found", benefit.ID)
	}
	if current.Version != benefit.Version {
		return domain.Busy(ErrOptimisticLock, "benefit %s changed concurrently", benefit.ID)
	}
	benefit.Version++
	t.state.benefits[benefit.ID] = benefit
	return nil
}

func (t *memoryTx) LockAllocation(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error) {
	return t.GetAllocation(ctx, delegateID, benefitID)
}

func (t *memoryTx) SaveAllocation(_ context.Context, a domain.Allocation) error {
	key := allocationKey{a.DelegateID, a.BenefitID}
	if a.IsZero() {
		delete(t.state.allocations, key)
		return nil
	}
	if _, ok := t.state.benefits[a.BenefitID]; !ok {
		return domain.NotFound("benefit %s not found", a.BenefitID)
	}
	t.state.allocations[key] = a
	return nil
}

func (t *memoryTx) OutstandingUnits(_ context.Context, benefitID string) (int, error) {
	total := 0
	for _, a := range t.state.allocations {
		if a.BenefitID == benefitID {
			total += a.RemainingQuantity
		}
	}
	return total, nil
}

func (t *memoryTx) InsertDelivery(_ context.Context, d domain.Delivery) error {
	if _, ok := t.state.deliveries[d.ID]; ok {
		return domain.Conflict("delivery %s already exists", d.ID)
	}
	t.state.deliveries[d.ID] = d
	return nil
}

func (t *memoryTx) LockDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	return t.GetDelivery(ctx, deliveryID)
}

func (t *memoryTx) DeleteDelivery(_ context.Context, deliveryID string) error {
	if _, ok := t.state.deliveries[deliveryID]; !ok {
		return domain.NotFound("delivery %s not found", deliveryID)
	}
	delete(t.state.deliveries, deliveryID)
	return nil
}

// contextError maps an expired or abandoned transaction context.
func contextError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Busy(err, "%s: transaction timed out", op)
	}
	return domain.Internal(err, "%s", op)
}
