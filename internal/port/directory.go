package port

import "context"

type DelegateInfo struct {
	ID     string
	Active bool
}

//go:generate mockgen -destination=mocks/mock_port.go -package=mocks . Directory,AuditSink

// Directory answers membership questions owned by the surrounding application.
type Directory interface {
	// Delegate returns domain.ErrNotFound for an unknown delegate
	Delegate(ctx context.Context, delegateID string) (DelegateInfo, error)

	AffiliateExists(ctx context.Context, affiliateID string) (bool, error)

	ChildBelongsTo(ctx context.Context, childID, affiliateID string) (bool, error)
}
