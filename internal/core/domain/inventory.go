package domain

import "time"

// Allocation is a delegate's holding of one benefit. A missing row and the
// zero Allocation are the same state.
type Allocation struct {
	DelegateID        string    `json:"delegate_id"`
	BenefitID         string    `json:"benefit_id"`
	AssignedQuantity  int       `json:"assigned_quantity"`
	RemainingQuantity int       `json:"remaining_quantity"`
	AssignedAt        time.Time `json:"assigned_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func NewAllocation(delegateID, benefitID string) Allocation {
	return Allocation{DelegateID: delegateID, BenefitID: benefitID}
}

func (a Allocation) IsZero() bool {
	return a.AssignedQuantity == 0 && a.RemainingQuantity == 0
}

// Delivered is the number of units handed out from this allocation.
func (a Allocation) Delivered() int {
	return a.AssignedQuantity - a.RemainingQuantity
}

func (a *Allocation) Credit(qty int, now time.Time) error {
	if qty <= 0 {
		return Validation("quantity must be positive, got %d", qty)
	}
	if a.IsZero() {
		a.AssignedAt = now
	}
	a.AssignedQuantity += qty
	a.RemainingQuantity += qty
	a.UpdatedAt = now
	return nil
}

func (a *Allocation) DebitAssigned(qty int, now time.Time) error {
	if qty <= 0 {
		return Validation("quantity must be positive, got %d", qty)
	}
	if qty > a.RemainingQuantity {
		return Conflict("only %d undelivered units remain with delegate %s, cannot reclaim %d (%d already delivered)",
			a.RemainingQuantity, a.DelegateID, qty, a.Delivered())
	}
	a.AssignedQuantity -= qty
	a.RemainingQuantity -= qty
	a.UpdatedAt = now
	if a.IsZero() {
		a.AssignedAt = time.Time{}
		a.UpdatedAt = time.Time{}
	}
	return nil
}

func (a *Allocation) DebitRemaining(now time.Time) error {
	if a.RemainingQuantity <= 0 {
		return InsufficientStock("delegate %s has no undelivered units of benefit %s", a.DelegateID, a.BenefitID)
	}
	a.RemainingQuantity--
	a.UpdatedAt = now
	return nil
}

func (a *Allocation) CreditRemaining(now time.Time) error {
	if a.RemainingQuantity+1 > a.AssignedQuantity {
		return Corruption("delegate %s allocation of benefit %s would have remaining %d above assigned %d",
			a.DelegateID, a.BenefitID, a.RemainingQuantity+1, a.AssignedQuantity)
	}
	a.RemainingQuantity++
	a.UpdatedAt = now
	return nil
}

// CheckInvariant verifies 0 <= remaining <= assigned.
func (a Allocation) CheckInvariant() error {
	if a.RemainingQuantity < 0 || a.RemainingQuantity > a.AssignedQuantity {
		return Corruption("delegate %s allocation of benefit %s has remaining %d outside [0, %d]",
			a.DelegateID, a.BenefitID, a.RemainingQuantity, a.AssignedQuantity)
	}
	return nil
}
