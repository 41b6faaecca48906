package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

type Violation struct {
	BenefitID  string `json:"benefit_id"`
	DelegateID string `json:"delegate_id,omitempty"`
	Detail     string `json:"detail"`
}

// InvariantChecker recomputes the conservation equations from stored state:
//
//	total(B) = unassigned(B) + sum over d of assigned(d, B)
//	remaining(d, B) = assigned(d, B) - deliveries(d, B)
type InvariantChecker struct {
	ledger *Ledger
}

func NewInvariantChecker(ledger *Ledger) *InvariantChecker {
	return &InvariantChecker{ledger: ledger}
}

// Check verifies one benefit, or all of them when benefitID is empty.
func (c *InvariantChecker) Check(ctx context.Context, benefitID string) ([]Violation, error) {
	var violations []Violation
	err := c.ledger.store.ReadSnapshot(ctx, func(ctx context.Context, r port.LedgerReader) error {
		var benefits []domain.Benefit
		if benefitID != "" {
			b, err := r.GetBenefit(ctx, benefitID)
			if err != nil {
				return err
			}
			benefits = []domain.Benefit{b}
		} else {
			all, err := r.ListBenefits(ctx)
			if err != nil {
				return err
			}
			benefits = all
		}

		for _, b := range benefits {
			v, err := checkBenefit(ctx, r, b)
			if err != nil {
				return err
			}
			violations = append(violations, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, v := range violations {
		c.ledger.metrics.IncrementCorruptions()
		c.ledger.logger.Error("ledger invariant violated",
			zap.String("benefit_id", v.BenefitID),
			zap.String("delegate_id", v.DelegateID),
			zap.String("detail", v.Detail))
		c.ledger.emit(ctx, domain.AuditLedgerCorruption, map[string]string{
			"benefit_id":  v.BenefitID,
			"delegate_id": v.DelegateID,
			"detail":      v.Detail,
		})
	}
	return violations, nil
}

func checkBenefit(ctx context.Context, r port.LedgerReader, b domain.Benefit) ([]Violation, error) {
	var out []Violation
	if err := b.CheckInvariant(); err != nil {
		out = append(out, Violation{BenefitID: b.ID, Detail: domain.MessageOf(err)})
	}

	allocations, err := r.ListAllocationsByBenefit(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	deliveries, err := r.ListDeliveries(ctx, domain.DeliveryFilter{BenefitID: b.ID})
	if err != nil {
		return nil, err
	}
	delivered := make(map[string]int)
	for _, d := range deliveries {
		delivered[d.DelegateID]++
	}

	assigned := 0
	for _, a := range allocations {
		assigned += a.AssignedQuantity
		if err := a.CheckInvariant(); err != nil {
			out = append(out, Violation{BenefitID: b.ID, DelegateID: a.DelegateID, Detail: domain.MessageOf(err)})
		}
		if got := a.AssignedQuantity - delivered[a.DelegateID]; got != a.RemainingQuantity {
			out = append(out, Violation{
				BenefitID:  b.ID,
				DelegateID: a.DelegateID,
				Detail: fmt.Sprintf("remaining %d but assigned %d minus %d deliveries is %d",
					a.RemainingQuantity, a.AssignedQuantity, delivered[a.DelegateID], got),
			})
		}
		delete(delivered, a.DelegateID)
	}
	for delegateID, n := range delivered {
		out = append(out, Violation{
			BenefitID:  b.ID,
			DelegateID: delegateID,
			Detail:     fmt.Sprintf("%d deliveries without an allocation", n),
		})
	}

	if b.UnassignedStock+assigned != b.TotalStock {
		out = append(out, Violation{
			BenefitID: b.ID,
			Detail: fmt.Sprintf("total %d but unassigned %d plus assigned %d is %d",
				b.TotalStock, b.UnassignedStock, assigned, b.UnassignedStock+assigned),
		})
	}
	return out, nil
}
