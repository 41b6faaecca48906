package service

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

// AllocationService moves units between the central pool and delegates.
type AllocationService struct {
	ledger    *Ledger
	directory port.Directory
}

func NewAllocationService(ledger *Ledger, directory port.Directory) *AllocationService {
	return &AllocationService{ledger: ledger, directory: directory}
}

// Assign debits the benefit's unassigned stock and credits the delegate.
// Both steps commit together or not at all.
func (s *AllocationService) Assign(ctx context.Context, delegateID, benefitID string, qty int) (domain.Allocation, error) {
	if err := validatePair(delegateID, benefitID, qty); err != nil {
		return domain.Allocation{}, err
	}

	var (
		out     domain.Allocation
		benefit domain.Benefit
	)
	err := s.ledger.execute(ctx, "assign", pairKey(benefitID, delegateID), func(ctx context.Context, tx port.LedgerTx) error {
		b, err := s.ledger.catalog(tx).DebitUnassigned(ctx, benefitID, qty)
		if err != nil {
			return err
		}
		if err := s.checkDelegate(ctx, delegateID); err != nil {
			return err
		}
		a, err := s.ledger.inventory(tx).Credit(ctx, delegateID, benefitID, qty)
		out, benefit = a, b
		return err
	})
	if err != nil {
		return domain.Allocation{}, err
	}

	s.ledger.invalidate(ctx, benefit)
	s.ledger.emit(ctx, domain.AuditAssigned, map[string]string{
		"delegate_id": delegateID,
		"benefit_id":  benefitID,
		"quantity":    strconv.Itoa(qty),
	})
	return out, nil
}

// RevokeAssignment returns undelivered units to the central pool. The
// delegate is debited first; if that fails the catalog is never touched.
func (s *AllocationService) RevokeAssignment(ctx context.Context, delegateID, benefitID string, qty int) (domain.Allocation, error) {
	if err := validatePair(delegateID, benefitID, qty); err != nil {
		return domain.Allocation{}, err
	}

	var (
		out     domain.Allocation
		benefit domain.Benefit
	)
	err := s.ledger.execute(ctx, "revoke_assignment", pairKey(benefitID, delegateID), func(ctx context.Context, tx port.LedgerTx) error {
		a, b, err := s.revoke(ctx, tx, delegateID, benefitID, qty)
		out, benefit = a, b
		return err
	})
	if err != nil {
		return domain.Allocation{}, err
	}

	s.ledger.invalidate(ctx, benefit)
	s.ledger.emit(ctx, domain.AuditAssignmentRevoked, map[string]string{
		"delegate_id": delegateID,
		"benefit_id":  benefitID,
		"quantity":    strconv.Itoa(qty),
	})
	return out, nil
}

type Reclaimed struct {
	BenefitID  string            `json:"benefit_id"`
	Quantity   int               `json:"quantity"`
	Allocation domain.Allocation `json:"allocation"`
}

// ReclaimDelegate returns every undelivered unit a delegate holds to the
// central pool, one pair at a time. Pairs reclaimed before a failure stay
// reclaimed and are returned alongside the error.
func (s *AllocationService) ReclaimDelegate(ctx context.Context, delegateID string) ([]Reclaimed, error) {
	if err := requireID("delegate id", delegateID); err != nil {
		return nil, err
	}
	allocations, err := s.ledger.store.ListAllocationsByDelegate(ctx, delegateID)
	if err != nil {
		return nil, err
	}

	var out []Reclaimed
	for _, held := range allocations {
		if held.RemainingQuantity == 0 {
			continue
		}
		benefitID := held.BenefitID

		var (
			r       Reclaimed
			benefit domain.Benefit
		)
		err := s.ledger.execute(ctx, "reclaim_delegate", pairKey(benefitID, delegateID), func(ctx context.Context, tx port.LedgerTx) error {
			current, err := s.ledger.inventory(tx).GetOrCreate(ctx, delegateID, benefitID)
			if err != nil {
				return err
			}
			r = Reclaimed{BenefitID: benefitID, Quantity: current.RemainingQuantity, Allocation: current}
			if current.RemainingQuantity == 0 {
				return nil
			}
			a, b, err := s.revoke(ctx, tx, delegateID, benefitID, current.RemainingQuantity)
			r.Allocation, benefit = a, b
			return err
		})
		if err != nil {
			return out, err
		}
		if r.Quantity == 0 {
			continue
		}

		s.ledger.invalidate(ctx, benefit)
		s.ledger.emit(ctx, domain.AuditDelegateReclaimed, map[string]string{
			"delegate_id": delegateID,
			"benefit_id":  benefitID,
			"quantity":    strconv.Itoa(r.Quantity),
		})
		s.ledger.logger.Info("reclaimed delegate stock",
			zap.String("delegate_id", delegateID),
			zap.String("benefit_id", benefitID),
			zap.Int("quantity", r.Quantity))
		out = append(out, r)
	}
	return out, nil
}

// revoke moves qty undelivered units from the delegate back to the pool. The
// benefit row is locked before the delegate is debited, so an unknown benefit
// is NotFound and a failed debit leaves the catalog untouched.
func (s *AllocationService) revoke(ctx context.Context, tx port.LedgerTx, delegateID, benefitID string, qty int) (domain.Allocation, domain.Benefit, error) {
	catalog := s.ledger.catalog(tx)
	if _, err := catalog.Get(ctx, benefitID); err != nil {
		return domain.Allocation{}, domain.Benefit{}, err
	}
	a, err := s.ledger.inventory(tx).DebitAssigned(ctx, delegateID, benefitID, qty)
	if err != nil {
		return domain.Allocation{}, domain.Benefit{}, err
	}
	b, err := catalog.CreditUnassigned(ctx, benefitID, qty)
	if err != nil {
		return domain.Allocation{}, domain.Benefit{}, err
	}
	return a, b, nil
}

func (s *AllocationService) checkDelegate(ctx context.Context, delegateID string) error {
	info, err := lookupDelegate(ctx, s.directory, delegateID)
	if err != nil {
		return err
	}
	if !info.Active {
		return domain.Validation("delegate %s is inactive", delegateID)
	}
	return nil
}

func validatePair(delegateID, benefitID string, qty int) error {
	if err := requireID("delegate id", delegateID); err != nil {
		return err
	}
	if err := requireID("benefit id", benefitID); err != nil {
		return err
	}
	return requireQuantity(qty)
}

// lookupDelegate maps directory failures onto the ledger taxonomy: an unknown
// delegate is NotFound, anything else Internal.
func lookupDelegate(ctx context.Context, dir port.Directory, delegateID string) (port.DelegateInfo, error) {
	info, err := dir.Delegate(ctx, delegateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return port.DelegateInfo{}, domain.NotFound("delegate %s not found", delegateID)
		}
		return port.DelegateInfo{}, domain.Internal(err, "look up delegate %s", delegateID)
	}
	return info, nil
}
