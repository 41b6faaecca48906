package directory

import (
	"context"
	"sync"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

// MemoryDirectory is a mutable in-process directory for single-process mode
// and tests.
type MemoryDirectory struct {
	mu         sync.RWMutex
	delegates  map[string]bool
	affiliates map[string]struct{}
	children   map[string]string // child -> affiliate
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		delegates:  make(map[string]bool),
		affiliates: make(map[string]struct{}),
		children:   make(map[string]string),
	}
}

func (d *MemoryDirectory) PutDelegate(id string, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delegates[id] = active
}

func (d *MemoryDirectory) PutAffiliate(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.affiliates[id] = struct{}{}
}

// PutChild registers childID under affiliateID, registering the affiliate too.
func (d *MemoryDirectory) PutChild(childID, affiliateID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.affiliates[affiliateID] = struct{}{}
	d.children[childID] = affiliateID
}

func (d *MemoryDirectory) Delegate(_ context.Context, delegateID string) (port.DelegateInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	active, ok := d.delegates[delegateID]
	if !ok {
		return port.DelegateInfo{}, domain.NotFound("delegate %s not found", delegateID)
	}
	return port.DelegateInfo{ID: delegateID, Active: active}, nil
}

func (d *MemoryDirectory) AffiliateExists(_ context.Context, affiliateID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.affiliates[affiliateID]
	return ok, nil
}

func (d *MemoryDirectory) ChildBelongsTo(_ context.Context, childID, affiliateID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	parent, ok := d.children[childID]
	return ok && parent == affiliateID, nil
}
