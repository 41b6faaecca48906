package port

import (
	"context"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

type CacheRepository interface {
	// GetBenefit returns an advisory snapshot, false on miss
	GetBenefit(ctx context.Context, benefitID string) (domain.Benefit, bool, error)

	// SetBenefit stores a snapshot unless a newer version is already cached
	SetBenefit(ctx context.Context, benefit domain.Benefit) error

	// InvalidateBenefit drops the snapshot after a committed write that left
	// the benefit at version. Later fills older than version are refused.
	InvalidateBenefit(ctx context.Context, benefitID string, version int) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes a key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
