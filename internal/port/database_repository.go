package port

import (
	"context"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

// LedgerReader is the read-only view of the ledger. Results are committed
// state; nothing read here may be used to decide a debit.
type LedgerReader interface {
	// GetBenefit returns domain.ErrNotFound for an unknown id
	GetBenefit(ctx context.Context, benefitID string) (domain.Benefit, error)

	ListBenefits(ctx context.Context) ([]domain.Benefit, error)

	// GetAllocation returns the zero allocation for a pair that holds nothing
	GetAllocation(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error)

	ListAllocationsByDelegate(ctx context.Context, delegateID string) ([]domain.Allocation, error)

	ListAllocationsByBenefit(ctx context.Context, benefitID string) ([]domain.Allocation, error)

	// GetDelivery returns domain.ErrNotFound for an unknown id
	GetDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error)

	ListDeliveries(ctx context.Context, filter domain.DeliveryFilter) ([]domain.Delivery, error)
}

// LedgerTx is the write surface available inside a transaction. Lock* methods
// read a row and hold it until commit or rollback.
type LedgerTx interface {
	InsertBenefit(ctx context.Context, benefit domain.Benefit) error

	// LockBenefit returns domain.ErrNotFound for an unknown id
	LockBenefit(ctx context.Context, benefitID string) (domain.Benefit, error)

	// UpdateBenefit writes the benefit with version check for optimistic locking
	UpdateBenefit(ctx context.Context, benefit domain.Benefit) error

	// LockAllocation returns the zero allocation when the pair holds nothing
	LockAllocation(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error)

	// SaveAllocation upserts the allocation, deleting the row when it is zero
	SaveAllocation(ctx context.Context, allocation domain.Allocation) error

	// OutstandingUnits sums the undelivered units delegates hold of a benefit
	OutstandingUnits(ctx context.Context, benefitID string) (int, error)

	InsertDelivery(ctx context.Context, delivery domain.Delivery) error

	// LockDelivery returns domain.ErrNotFound for an unknown id
	LockDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error)

	DeleteDelivery(ctx context.Context, deliveryID string) error
}

type LedgerStore interface {
	LedgerReader

	// RunInTx runs fn in one serializable transaction. fn's error rolls
	// everything back and is returned unchanged.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	// ReadSnapshot runs fn against one consistent view of the ledger
	ReadSnapshot(ctx context.Context, fn func(ctx context.Context, r LedgerReader) error) error
}
