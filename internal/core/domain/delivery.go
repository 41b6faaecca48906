package domain

import (
	"strings"
	"time"
)

type RecipientType string

const (
	RecipientAffiliate RecipientType = "affiliate"
	RecipientChild     RecipientType = "child"
)

func ParseRecipientType(s string) (RecipientType, error) {
	switch RecipientType(strings.ToLower(strings.TrimSpace(s))) {
	case RecipientAffiliate:
		return RecipientAffiliate, nil
	case RecipientChild:
		return RecipientChild, nil
	default:
		return "", Validation("unknown recipient type %q", s)
	}
}

type Recipient struct {
	Type              RecipientType `json:"type"`
	ID                string        `json:"id"`
	ParentAffiliateID string        `json:"parent_affiliate_id,omitempty"`
}

// Validate checks the shape of the recipient linkage. Whether the child really
// belongs to the parent is answered by the directory.
func (r Recipient) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return Validation("recipient id is required")
	}
	switch r.Type {
	case RecipientChild:
		if strings.TrimSpace(r.ParentAffiliateID) == "" {
			return Validation("child recipient %s requires a parent affiliate", r.ID)
		}
	case RecipientAffiliate:
		if r.ParentAffiliateID != "" {
			return Validation("affiliate recipient %s cannot carry a parent affiliate", r.ID)
		}
	default:
		return Validation("unknown recipient type %q", r.Type)
	}
	return nil
}

// Delivery is one unit of a benefit handed to one recipient.
type Delivery struct {
	ID          string    `json:"id"`
	BenefitID   string    `json:"benefit_id"`
	DelegateID  string    `json:"delegate_id"`
	Recipient   Recipient `json:"recipient"`
	Notes       string    `json:"notes,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type DeliveryFilter struct {
	DelegateID    string
	BenefitID     string
	RecipientType RecipientType
	RecipientID   string
}

func (f DeliveryFilter) Matches(d Delivery) bool {
	if f.DelegateID != "" && d.DelegateID != f.DelegateID {
		return false
	}
	if f.BenefitID != "" && d.BenefitID != f.BenefitID {
		return false
	}
	if f.RecipientType != "" && d.Recipient.Type != f.RecipientType {
		return false
	}
	if f.RecipientID != "" && d.Recipient.ID != f.RecipientID {
		return false
	}
	return true
}
