package service

import (
	"context"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

// DeliveryLedger appends and removes delivery records within one transaction.
// Records are never edited.
type DeliveryLedger struct {
	tx port.LedgerTx
}

func (l DeliveryLedger) Append(ctx context.Context, delivery domain.Delivery) error {
	return l.tx.InsertDelivery(ctx, delivery)
}

func (l DeliveryLedger) Get(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	return l.tx.LockDelivery(ctx, deliveryID)
}

func (l DeliveryLedger) Remove(ctx context.Context, deliveryID string) error {
	return l.tx.DeleteDelivery(ctx, deliveryID)
}
