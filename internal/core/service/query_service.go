package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

// QueryService serves read-only views. Benefit snapshots may come from the
// cache and are advisory only.
type QueryService struct {
	ledger *Ledger
	group  singleflight.Group
}

func NewQueryService(ledger *Ledger) *QueryService {
	return &QueryService{ledger: ledger}
}

func (s *QueryService) GetBenefit(ctx context.Context, benefitID string) (domain.Benefit, error) {
	if err := requireID("benefit id", benefitID); err != nil {
		return domain.Benefit{}, err
	}
	cache := s.ledger.cache
	if cache != nil {
		b, ok, err := cache.GetBenefit(ctx, benefitID)
		if err != nil {
			s.ledger.logger.Warn("read benefit snapshot", zap.String("benefit_id", benefitID), zap.Error(err))
		}
		s.ledger.metrics.IncrementCache(ok)
		if ok {
			return b, nil
		}
	}

	// The read is shared by every caller waiting on benefitID, so one
	// caller's cancellation must not fail the others.
	readCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(benefitID, func() (any, error) {
		b, err := s.ledger.store.GetBenefit(readCtx, benefitID)
		if err != nil {
			return domain.Benefit{}, err
		}
		if cache != nil {
			if err := cache.SetBenefit(readCtx, b); err != nil {
				s.ledger.logger.Warn("write benefit snapshot", zap.String("benefit_id", benefitID), zap.Error(err))
			}
		}
		return b, nil
	})
	if err != nil {
		return domain.Benefit{}, err
	}
	return v.(domain.Benefit), nil
}

func (s *QueryService) ListBenefits(ctx context.Context) ([]domain.Benefit, error) {
	return s.ledger.store.ListBenefits(ctx)
}

func (s *QueryService) GetAllocation(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error) {
	if err := requireID("delegate id", delegateID); err != nil {
		return domain.Allocation{}, err
	}
	if err := requireID("benefit id", benefitID); err != nil {
		return domain.Allocation{}, err
	}
	return s.ledger.store.GetAllocation(ctx, delegateID, benefitID)
}

func (s *QueryService) ListAllocationsByDelegate(ctx context.Context, delegateID string) ([]domain.Allocation, error) {
	if err := requireID("delegate id", delegateID); err != nil {
		return nil, err
	}
	return s.ledger.store.ListAllocationsByDelegate(ctx, delegateID)
}

func (s *QueryService) ListAllocationsByBenefit(ctx context.Context, benefitID string) ([]domain.Allocation, error) {
	if err := requireID("benefit id", benefitID); err != nil {
		return nil, err
	}
	return s.ledger.store.ListAllocationsByBenefit(ctx, benefitID)
}

func (s *QueryService) GetDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	if err := requireID("delivery id", deliveryID); err != nil {
		return domain.Delivery{}, err
	}
	return s.ledger.store.GetDelivery(ctx, deliveryID)
}

func (s *QueryService) ListDeliveriesByDelegate(ctx context.Context, delegateID string) ([]domain.Delivery, error) {
	if err := requireID("delegate id", delegateID); err != nil {
		return nil, err
	}
	return s.ledger.store.ListDeliveries(ctx, domain.DeliveryFilter{DelegateID: delegateID})
}

func (s *QueryService) ListDeliveriesByBenefit(ctx context.Context, benefitID string) ([]domain.Delivery, error) {
	if err := requireID("benefit id", benefitID); err != nil {
		return nil, err
	}
	return s.ledger.store.ListDeliveries(ctx, domain.DeliveryFilter{BenefitID: benefitID})
}

func (s *QueryService) ListDeliveriesByRecipient(ctx context.Context, recipientType domain.RecipientType, recipientID string) ([]domain.Delivery, error) {
	if err := requireID("recipient id", recipientID); err != nil {
		return nil, err
	}
	return s.ledger.store.ListDeliveries(ctx, domain.DeliveryFilter{RecipientType: recipientType, RecipientID: recipientID})
}
