package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

// BenefitCatalog owns benefit identity and the central stock counters for the
// duration of one transaction.
type BenefitCatalog struct {
	tx  port.LedgerTx
	now func() time.Time
}

func (c BenefitCatalog) Create(ctx context.Context, benefit domain.Benefit) error {
	return c.tx.InsertBenefit(ctx, benefit)
}

func (c BenefitCatalog) Get(ctx context.Context, benefitID string) (domain.Benefit, error) {
	return c.tx.LockBenefit(ctx, benefitID)
}

func (c BenefitCatalog) Restock(ctx context.Context, benefitID string, delta int) (domain.Benefit, error) {
	return c.mutate(ctx, benefitID, func(b *domain.Benefit) error { return b.Restock(delta) })
}

func (c BenefitCatalog) CorrectTotal(ctx context.Context, benefitID string, total int) (domain.Benefit, error) {
	return c.mutate(ctx, benefitID, func(b *domain.Benefit) error { return b.CorrectTotal(total) })
}

// DebitUnassigned moves qty units out of the central pool. Retired or
// unavailable benefits refuse the debit.
func (c BenefitCatalog) DebitUnassigned(ctx context.Context, benefitID string, qty int) (domain.Benefit, error) {
	return c.mutate(ctx, benefitID, func(b *domain.Benefit) error {
		if err := b.CanAllocate(); err != nil {
			return err
		}
		return b.DebitUnassigned(qty)
	})
}

// CreditUnassigned returns qty units to the central pool. Only reversal paths
// call it; overflowing the total is reported as corruption.
func (c BenefitCatalog) CreditUnassigned(ctx context.Context, benefitID string, qty int) (domain.Benefit, error) {
	return c.mutate(ctx, benefitID, func(b *domain.Benefit) error { return b.CreditUnassigned(qty) })
}

func (c BenefitCatalog) SetAvailability(ctx context.Context, benefitID string, available bool) (domain.Benefit, error) {
	return c.mutate(ctx, benefitID, func(b *domain.Benefit) error {
		if available && b.Retired() {
			return domain.Conflict("benefit %s is retired", b.ID)
		}
		b.Available = available
		return nil
	})
}

func (c BenefitCatalog) UpdateDetails(ctx context.Context, benefitID string, details BenefitDetails) (domain.Benefit, error) {
	return c.mutate(ctx, benefitID, func(b *domain.Benefit) error {
		if details.Name != nil {
			name := strings.TrimSpace(*details.Name)
			if name == "" {
				return domain.Validation("benefit name is required")
			}
			b.Name = name
		}
		if details.Category != nil {
			category := strings.TrimSpace(*details.Category)
			if category == "" {
				return domain.Validation("benefit category is required")
			}
			b.Category = category
		}
		if details.AgeRange != nil {
			if err := details.AgeRange.Validate(); err != nil {
				return err
			}
			b.AgeRange = *details.AgeRange
		}
		return nil
	})
}

// Retire closes a benefit for good. Stock still in the pool or undelivered in
// a delegate's hands blocks it.
func (c BenefitCatalog) Retire(ctx context.Context, benefitID string) (domain.Benefit, error) {
	// Allocation changes that move units lock the benefit row first, so
	// holding it keeps the outstanding count stable.
	if _, err := c.tx.LockBenefit(ctx, benefitID); err != nil {
		return domain.Benefit{}, err
	}
	outstanding, err := c.tx.OutstandingUnits(ctx, benefitID)
	if err != nil {
		return domain.Benefit{}, err
	}
	return c.mutate(ctx, benefitID, func(b *domain.Benefit) error {
		if b.Retired() {
			return domain.Conflict("benefit %s is already retired", b.ID)
		}
		if b.UnassignedStock > 0 {
			return domain.Conflict("benefit %s still has %d unassigned units", b.ID, b.UnassignedStock)
		}
		if outstanding > 0 {
			return domain.Conflict("delegates still hold %d undelivered units of benefit %s", outstanding, b.ID)
		}
		b.Status = domain.BenefitStatusRetired
		b.Available = false
		return nil
	})
}

func (c BenefitCatalog) mutate(ctx context.Context, benefitID string, fn func(b *domain.Benefit) error) (domain.Benefit, error) {
	b, err := c.tx.LockBenefit(ctx, benefitID)
	if err != nil {
		return domain.Benefit{}, err
	}
	if err := fn(&b); err != nil {
		return domain.Benefit{}, err
	}
	if err := b.CheckInvariant(); err != nil {
		return domain.Benefit{}, err
	}
	b.UpdatedAt = c.now()
	if err := c.tx.UpdateBenefit(ctx, b); err != nil {
		return domain.Benefit{}, err
	}
	b.Version++
	return b, nil
}

type CreateBenefitRequest struct {
	Name         string
	Category     string
	AgeRange     domain.AgeRange
	InitialStock int
}

// BenefitDetails carries the descriptive fields to change; nil leaves a field as is.
type BenefitDetails struct {
	Name     *string
	Category *string
	AgeRange *domain.AgeRange
}

// CatalogService exposes the administrative benefit operations.
type CatalogService struct {
	ledger *Ledger
}

func NewCatalogService(ledger *Ledger) *CatalogService {
	return &CatalogService{ledger: ledger}
}

func (s *CatalogService) CreateBenefit(ctx context.Context, req CreateBenefitRequest) (domain.Benefit, error) {
	benefit, err := domain.NewBenefit(s.ledger.newID(), req.Name, req.Category, req.AgeRange, req.InitialStock, s.ledger.now())
	if err != nil {
		return domain.Benefit{}, err
	}
	err = s.ledger.execute(ctx, "create_benefit", benefitKey(benefit.ID), func(ctx context.Context, tx port.LedgerTx) error {
		return s.ledger.catalog(tx).Create(ctx, benefit)
	})
	if err != nil {
		return domain.Benefit{}, err
	}
	s.ledger.emit(ctx, domain.AuditBenefitCreated, map[string]string{
		"benefit_id":    benefit.ID,
		"initial_stock": strconv.Itoa(benefit.TotalStock),
	})
	return benefit, nil
}

func (s *CatalogService) Restock(ctx context.Context, benefitID string, delta int) (domain.Benefit, error) {
	if err := requireQuantity(delta); err != nil {
		return domain.Benefit{}, err
	}
	b, err := s.mutate(ctx, "restock", benefitID, func(ctx context.Context, c BenefitCatalog) (domain.Benefit, error) {
		return c.Restock(ctx, benefitID, delta)
	})
	if err != nil {
		return domain.Benefit{}, err
	}
	s.ledger.emit(ctx, domain.AuditBenefitRestocked, map[string]string{
		"benefit_id": benefitID,
		"quantity":   strconv.Itoa(delta),
	})
	return b, nil
}

func (s *CatalogService) CorrectStock(ctx context.Context, benefitID string, total int) (domain.Benefit, error) {
	b, err := s.mutate(ctx, "correct_stock", benefitID, func(ctx context.Context, c BenefitCatalog) (domain.Benefit, error) {
		return c.CorrectTotal(ctx, benefitID, total)
	})
	if err != nil {
		return domain.Benefit{}, err
	}
	s.ledger.emit(ctx, domain.AuditBenefitCorrected, map[string]string{
		"benefit_id":  benefitID,
		"total_stock": strconv.Itoa(total),
	})
	return b, nil
}

func (s *CatalogService) SetAvailability(ctx context.Context, benefitID string, available bool) (domain.Benefit, error) {
	b, err := s.mutate(ctx, "set_availability", benefitID, func(ctx context.Context, c BenefitCatalog) (domain.Benefit, error) {
		return c.SetAvailability(ctx, benefitID, available)
	})
	if err != nil {
		return domain.Benefit{}, err
	}
	s.ledger.emit(ctx, domain.AuditAvailability, map[string]string{
		"benefit_id": benefitID,
		"available":  strconv.FormatBool(available),
	})
	return b, nil
}

func (s *CatalogService) UpdateDetails(ctx context.Context, benefitID string, details BenefitDetails) (domain.Benefit, error) {
	b, err := s.mutate(ctx, "update_benefit", benefitID, func(ctx context.Context, c BenefitCatalog) (domain.Benefit, error) {
		return c.UpdateDetails(ctx, benefitID, details)
	})
	if err != nil {
		return domain.Benefit{}, err
	}
	s.ledger.emit(ctx, domain.AuditBenefitUpdated, map[string]string{"benefit_id": benefitID})
	return b, nil
}

func (s *CatalogService) Retire(ctx context.Context, benefitID string) (domain.Benefit, error) {
	b, err := s.mutate(ctx, "retire", benefitID, func(ctx context.Context, c BenefitCatalog) (domain.Benefit, error) {
		return c.Retire(ctx, benefitID)
	})
	if err != nil {
		return domain.Benefit{}, err
	}
	s.ledger.emit(ctx, domain.AuditBenefitRetired, map[string]string{"benefit_id": benefitID})
	return b, nil
}

func (s *CatalogService) mutate(ctx context.Context, op, benefitID string, fn func(ctx context.Context, c BenefitCatalog) (domain.Benefit, error)) (domain.Benefit, error) {
	if err := requireID("benefit id", benefitID); err != nil {
		return domain.Benefit{}, err
	}
	var out domain.Benefit
	err := s.ledger.execute(ctx, op, benefitKey(benefitID), func(ctx context.Context, tx port.LedgerTx) error {
		b, err := fn(ctx, s.ledger.catalog(tx))
		out = b
		return err
	})
	if err != nil {
		return domain.Benefit{}, err
	}
	s.ledger.invalidate(ctx, out)
	return out, nil
}
