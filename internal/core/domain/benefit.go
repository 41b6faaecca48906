package domain

import (
	"strings"
	"time"
)

type BenefitStatus string

const (
	BenefitStatusActive  BenefitStatus = "active"
	BenefitStatusRetired BenefitStatus = "retired"
)

// AgeRange is the eligible recipient age in years, inclusive. Label keeps the
// free-text form shown by the dashboard ("6-12 años").
type AgeRange struct {
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Label string `json:"label,omitempty"`
}

func (r AgeRange) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return Validation("age range cannot be negative")
	}
	if r.Max != 0 && r.Min > r.Max {
		return Validation("age range min %d is greater than max %d", r.Min, r.Max)
	}
	return nil
}

type Benefit struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Category        string        `json:"category"`
	AgeRange        AgeRange      `json:"age_range"`
	TotalStock      int           `json:"total_stock"`
	UnassignedStock int           `json:"unassigned_stock"`
	Available       bool          `json:"available"`
	Status          BenefitStatus `json:"status"`
	Version         int           `json:"version"` // optimistic locking
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func NewBenefit(id, name, category string, ageRange AgeRange, initialStock int, now time.Time) (Benefit, error) {
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)
	if name == "" {
		return Benefit{}, Validation("benefit name is required")
	}
	if category == "" {
		return Benefit{}, Validation("benefit category is required")
	}
	if initialStock < 0 {
		return Benefit{}, Validation("initial stock cannot be negative")
	}
	if err := ageRange.Validate(); err != nil {
		return Benefit{}, err
	}
	return Benefit{
		ID:              id,
		Name:            name,
		Category:        category,
		AgeRange:        ageRange,
		TotalStock:      initialStock,
		UnassignedStock: initialStock,
		Available:       true,
		Status:          BenefitStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Assigned is the number of units currently held by delegates.
func (b Benefit) Assigned() int {
	return b.TotalStock - b.UnassignedStock
}

func (b Benefit) Retired() bool {
	return b.Status == BenefitStatusRetired
}

func (b *Benefit) Restock(delta int) error {
	if delta <= 0 {
		return Validation("restock quantity must be positive, got %d", delta)
	}
	if b.Retired() {
		return Conflict("benefit %s is retired", b.ID)
	}
	b.TotalStock += delta
	b.UnassignedStock += delta
	return nil
}

// CorrectTotal sets a new cumulative total, moving the unassigned counter by
// the same delta. Units already allocated to delegates cannot be corrected away.
func (b *Benefit) CorrectTotal(newTotal int) error {
	if newTotal < 0 {
		return Validation("total stock cannot be negative")
	}
	delta := newTotal - b.TotalStock
	if b.UnassignedStock+delta < 0 {
		return Conflict("cannot correct total to %d: %d units are allocated to delegates", newTotal, b.Assigned())
	}
	b.TotalStock = newTotal
	b.UnassignedStock += delta
	return nil
}

// CanAllocate reports whether new units may leave the central pool.
func (b Benefit) CanAllocate() error {
	if b.Retired() {
		return Conflict("benefit %s is retired", b.ID)
	}
	if !b.Available {
		return Conflict("benefit %s is not available for assignment", b.ID)
	}
	return nil
}

func (b *Benefit) DebitUnassigned(qty int) error {
	if qty <= 0 {
		return Validation("quantity must be positive, got %d", qty)
	}
	if qty > b.UnassignedStock {
		return InsufficientStock("only %d unassigned units of %s remain, requested %d", b.UnassignedStock, b.Name, qty)
	}
	b.UnassignedStock -= qty
	return nil
}

func (b *Benefit) CreditUnassigned(qty int) error {
	if qty <= 0 {
		return Validation("quantity must be positive, got %d", qty)
	}
	if b.UnassignedStock+qty > b.TotalStock {
		return Corruption("crediting %d units to benefit %s would exceed total stock %d (unassigned %d)",
			qty, b.ID, b.TotalStock, b.UnassignedStock)
	}
	b.UnassignedStock += qty
	return nil
}

// CheckInvariant verifies 0 <= unassigned <= total.
func (b Benefit) CheckInvariant() error {
	if b.UnassignedStock < 0 || b.UnassignedStock > b.TotalStock {
		return Corruption("benefit %s has unassigned %d outside [0, %d]", b.ID, b.UnassignedStock, b.TotalStock)
	}
	return nil
}
