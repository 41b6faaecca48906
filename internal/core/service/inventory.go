package service

import (
	"context"
	"time"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

// DelegateInventory owns the per (delegate, benefit) allocation counters for
// the duration of one transaction.
type DelegateInventory struct {
	tx  port.LedgerTx
	now func() time.Time
}

func (i DelegateInventory) GetOrCreate(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error) {
	a, err := i.tx.LockAllocation(ctx, delegateID, benefitID)
	if err != nil {
		return domain.Allocation{}, err
	}
	a.DelegateID, a.BenefitID = delegateID, benefitID
	return a, nil
}

func (i DelegateInventory) Credit(ctx context.Context, delegateID, benefitID string, qty int) (domain.Allocation, error) {
	return i.mutate(ctx, delegateID, benefitID, func(a *domain.Allocation) error { return a.Credit(qty, i.now()) })
}

// DebitAssigned reclaims undelivered units; delivered units cannot be reclaimed.
func (i DelegateInventory) DebitAssigned(ctx context.Context, delegateID, benefitID string, qty int) (domain.Allocation, error) {
	return i.mutate(ctx, delegateID, benefitID, func(a *domain.Allocation) error { return a.DebitAssigned(qty, i.now()) })
}

func (i DelegateInventory) DebitRemaining(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error) {
	return i.mutate(ctx, delegateID, benefitID, func(a *domain.Allocation) error { return a.DebitRemaining(i.now()) })
}

func (i DelegateInventory) CreditRemaining(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error) {
	return i.mutate(ctx, delegateID, benefitID, func(a *domain.Allocation) error { return a.CreditRemaining(i.now()) })
}

func (i DelegateInventory) mutate(ctx context.Context, delegateID, benefitID string, fn func(a *domain.Allocation) error) (domain.Allocation, error) {
	a, err := i.GetOrCreate(ctx, delegateID, benefitID)
	if err != nil {
		return domain.Allocation{}, err
	}
	if err := fn(&a); err != nil {
		return domain.Allocation{}, err
	}
	if err := a.CheckInvariant(); err != nil {
		return domain.Allocation{}, err
	}
	if err := i.tx.SaveAllocation(ctx, a); err != nil {
		return domain.Allocation{}, err
	}
	return a, nil
}
