package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

type DeliverRequest struct {
	DelegateID string
	BenefitID  string
	Recipient  domain.Recipient
	Notes      string
}

// DeliveryService hands single units from a delegate's allocation to recipients
// and reverses those hand-outs.
type DeliveryService struct {
	ledger    *Ledger
	directory port.Directory
}

func NewDeliveryService(ledger *Ledger, directory port.Directory) *DeliveryService {
	return &DeliveryService{ledger: ledger, directory: directory}
}

// Deliver records one unit handed to a recipient. The delegate must hold an
// undelivered unit; central stock is never borrowed implicitly.
func (s *DeliveryService) Deliver(ctx context.Context, req DeliverRequest) (domain.Delivery, error) {
	if err := requireID("delegate id", req.DelegateID); err != nil {
		return domain.Delivery{}, err
	}
	if err := requireID("benefit id", req.BenefitID); err != nil {
		return domain.Delivery{}, err
	}
	// Inactive delegates may still hand out units they already hold.
	if _, err := lookupDelegate(ctx, s.directory, req.DelegateID); err != nil {
		return domain.Delivery{}, err
	}
	if err := s.validateRecipient(ctx, req.Recipient); err != nil {
		return domain.Delivery{}, err
	}
	if _, err := s.ledger.store.GetBenefit(ctx, req.BenefitID); err != nil {
		return domain.Delivery{}, err
	}

	var out domain.Delivery
	err := s.ledger.execute(ctx, "deliver", pairKey(req.BenefitID, req.DelegateID), func(ctx context.Context, tx port.LedgerTx) error {
		if _, err := s.ledger.inventory(tx).DebitRemaining(ctx, req.DelegateID, req.BenefitID); err != nil {
			return err
		}
		d := domain.Delivery{
			ID:          s.ledger.newID(),
			BenefitID:   req.BenefitID,
			DelegateID:  req.DelegateID,
			Recipient:   req.Recipient,
			Notes:       strings.TrimSpace(req.Notes),
			ActorID:     ActorFrom(ctx),
			DeliveredAt: s.ledger.now(),
		}
		if err := s.ledger.deliveries(tx).Append(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return domain.Delivery{}, err
	}

	s.ledger.emit(ctx, domain.AuditDelivered, deliveryEntityIDs(out))
	return out, nil
}

// ReverseDelivery deletes a delivery and returns its unit to the delegate.
// Reversing the same delivery twice fails with NotFound.
func (s *DeliveryService) ReverseDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	if err := requireID("delivery id", deliveryID); err != nil {
		return domain.Delivery{}, err
	}
	found, err := s.ledger.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}

	var out domain.Delivery
	err = s.ledger.execute(ctx, "reverse_delivery", pairKey(found.BenefitID, found.DelegateID), func(ctx context.Context, tx port.LedgerTx) error {
		deliveries := s.ledger.deliveries(tx)
		d, err := deliveries.Get(ctx, deliveryID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.inventory(tx).CreditRemaining(ctx, d.DelegateID, d.BenefitID); err != nil {
			return err
		}
		if err := deliveries.Remove(ctx, d.ID); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return domain.Delivery{}, err
	}

	s.ledger.emit(ctx, domain.AuditDeliveryReversed, deliveryEntityIDs(out))
	return out, nil
}

func (s *DeliveryService) validateRecipient(ctx context.Context, r domain.Recipient) error {
	if err := r.Validate(); err != nil {
		return err
	}
	switch r.Type {
	case domain.RecipientChild:
		ok, err := s.directory.ChildBelongsTo(ctx, r.ID, r.ParentAffiliateID)
		if err != nil {
			return directoryError(err, "check guardian of child %s", r.ID)
		}
		if !ok {
			return domain.Validation("child %s is not registered under affiliate %s", r.ID, r.ParentAffiliateID)
		}
	case domain.RecipientAffiliate:
		ok, err := s.directory.AffiliateExists(ctx, r.ID)
		if err != nil {
			return directoryError(err, "look up affiliate %s", r.ID)
		}
		if !ok {
			return domain.Validation("affiliate %s is not registered", r.ID)
		}
	}
	return nil
}

func directoryError(err error, format string, args ...any) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	return domain.Internal(err, format, args...)
}

func deliveryEntityIDs(d domain.Delivery) map[string]string {
	ids := map[string]string{
		"delivery_id":    d.ID,
		"delegate_id":    d.DelegateID,
		"benefit_id":     d.BenefitID,
		"recipient_type": string(d.Recipient.Type),
		"recipient_id":   d.Recipient.ID,
	}
	if d.Recipient.ParentAffiliateID != "" {
		ids["parent_affiliate_id"] = d.Recipient.ParentAffiliateID
	}
	return ids
}
