package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
	"github.com/rl1809/benefit-ledger/internal/port/mocks"
)

func TestLedgerScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBenefit(t, 10)

	a, err := f.allocations.Assign(ctx, "d1", b.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, a.AssignedQuantity)
	assert.Equal(t, 4, a.RemainingQuantity)
	assert.Equal(t, 6, f.benefit(t, b.ID).UnassignedStock)

	_, err = f.deliveries.Deliver(ctx, DeliverRequest{DelegateID: "d1", BenefitID: b.ID, Recipient: affiliate("a1")})
	require.NoError(t, err)
	a = f.allocation(t, "d1", b.ID)
	assert.Equal(t, 4, a.AssignedQuantity)
	assert.Equal(t, 3, a.RemainingQuantity)

	_, err = f.allocations.RevokeAssignment(ctx, "d1", b.ID, 4)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 6, f.benefit(t, b.ID).UnassignedStock)

	a, err = f.allocations.RevokeAssignment(ctx, "d1", b.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, a.AssignedQuantity)
	assert.Equal(t, 0, a.RemainingQuantity)
	assert.Equal(t, 9, f.benefit(t, b.ID).UnassignedStock)

	f.requireConsistent(t)
}

func TestAssignThenRevoke_RestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBenefit(t, 10)
	before := f.benefit(t, b.ID)

	_, err := f.allocations.Assign(ctx, "d1", b.ID, 5)
	require.NoError(t, err)
	_, err = f.allocations.RevokeAssignment(ctx, "d1", b.ID, 5)
	require.NoError(t, err)

	after := f.benefit(t, b.ID)
	assert.Equal(t, before.TotalStock, after.TotalStock)
	assert.Equal(t, before.UnassignedStock, after.UnassignedStock)
	assert.Equal(t, domain.NewAllocation("d1", b.ID), f.allocation(t, "d1", b.ID))

	held, err := f.queries.ListAllocationsByBenefit(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestAssign_InsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	b := f.createBenefit(t, 3)

	_, err := f.allocations.Assign(context.Background(), "d1", b.ID, 4)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, domain.MessageOf(err), "only 3 unassigned units")

	assert.Equal(t, 3, f.benefit(t, b.ID).UnassignedStock)
	assert.True(t, f.allocation(t, "d1", b.ID).IsZero())
}

func TestAssign_DelegateChecksRollBackTheDebit(t *testing.T) {
	tests := []struct {
		name     string
		delegate string
		want     error
	}{
		{"unknown delegate", "nobody", domain.ErrNotFound},
		{"inactive delegate", "retired-delegate", domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.createBenefit(t, 10)

			_, err := f.allocations.Assign(context.Background(), tt.delegate, b.ID, 2)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 10, f.benefit(t, b.ID).UnassignedStock)
		})
	}
}

func TestAssign_RefusedForUnavailableOrRetiredBenefit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBenefit(t, 5)

	_, err := f.catalog.SetAvailability(ctx, b.ID, false)
	require.NoError(t, err)
	_, err = f.allocations.Assign(ctx, "d1", b.ID, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)

	empty := f.createBenefit(t, 0)
	_, err = f.catalog.Retire(ctx, empty.ID)
	require.NoError(t, err)
	_, err = f.allocations.Assign(ctx, "d1", empty.ID, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAssign_Validation(t *testing.T) {
	f := newFixture(t)
	b := f.createBenefit(t, 5)

	_, err := f.allocations.Assign(context.Background(), "d1", b.ID, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.allocations.Assign(context.Background(), "", b.ID, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.allocations.Assign(context.Background(), "d1", "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssign_AccumulatesPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBenefit(t, 10)

	_, err := f.allocations.Assign(ctx, "d1", b.ID, 2)
	require.NoError(t, err)
	a, err := f.allocations.Assign(ctx, "d1", b.ID, 3)
	require.NoError(t, err)

	assert.Equal(t, 5, a.AssignedQuantity)
	assert.Equal(t, fixedNow, a.AssignedAt)
	f.requireConsistent(t)
}

func TestRevokeAssignment_NothingAssigned(t *testing.T) {
	f := newFixture(t)
	b := f.createBenefit(t, 10)

	_, err := f.allocations.RevokeAssignment(context.Background(), "d1", b.ID, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 10, f.benefit(t, b.ID).UnassignedStock)
}

func TestRevokeAssignment_UnknownBenefit(t *testing.T) {
	f := newFixture(t)

	_, err := f.allocations.RevokeAssignment(context.Background(), "d1", "no-such-benefit", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.audit.kinds())
}

func TestReclaimDelegate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kits := f.createBenefit(t, 10)
	shoes := f.createBenefit(t, 4)

	_, err := f.allocations.Assign(ctx, "d1", kits.ID, 5)
	require.NoError(t, err)
	_, err = f.allocations.Assign(ctx, "d1", shoes.ID, 2)
	require.NoError(t, err)
	_, err = f.allocations.Assign(ctx, "d2", kits.ID, 1)
	require.NoError(t, err)
	_, err = f.deliveries.Deliver(ctx, DeliverRequest{DelegateID: "d1", BenefitID: kits.ID, Recipient: affiliate("a1")})
	require.NoError(t, err)

	reclaimed, err := f.allocations.ReclaimDelegate(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, reclaimed, 2)

	byBenefit := map[string]Reclaimed{}
	for _, r := range reclaimed {
		byBenefit[r.BenefitID] = r
	}
	assert.Equal(t, 4, byBenefit[kits.ID].Quantity)
	assert.Equal(t, 1, byBenefit[kits.ID].Allocation.AssignedQuantity)
	assert.Equal(t, 2, byBenefit[shoes.ID].Quantity)

	assert.Equal(t, 8, f.benefit(t, kits.ID).UnassignedStock)
	assert.Equal(t, 4, f.benefit(t, shoes.ID).UnassignedStock)
	assert.Equal(t, 1, f.allocation(t, "d2", kits.ID).RemainingQuantity)
	f.requireConsistent(t)

	again, err := f.allocations.ReclaimDelegate(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestAssign_EmitsAuditWithActor(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockAuditSink(ctrl)
	f := newFixture(t, WithAuditSink(sink))

	sink.EXPECT().Emit(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e domain.AuditEvent) {
		assert.Equal(t, domain.AuditBenefitCreated, e.Kind)
	})
	b := f.createBenefit(t, 5)

	sink.EXPECT().Emit(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e domain.AuditEvent) {
		assert.Equal(t, domain.AuditAssigned, e.Kind)
		assert.Equal(t, "operator-7", e.ActorID)
		assert.Equal(t, fixedNow, e.Timestamp)
		assert.Equal(t, map[string]string{"delegate_id": "d1", "benefit_id": b.ID, "quantity": "2"}, e.EntityIDs)
	})
	_, err := f.allocations.Assign(WithActor(context.Background(), "operator-7"), "d1", b.ID, 2)
	require.NoError(t, err)
}

func TestAssign_DirectoryFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	f := newFixture(t)
	f.wire(dir)
	b := f.createBenefit(t, 5)

	dir.EXPECT().Delegate(gomock.Any(), "d1").Return(port.DelegateInfo{}, errors.New("connection reset"))

	_, err := f.allocations.Assign(context.Background(), "d1", b.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInternal)
	assert.Equal(t, 5, f.benefit(t, b.ID).UnassignedStock)
}

func TestAssign_RejectionsDoNotEmit(t *testing.T) {
	f := newFixture(t)
	b := f.createBenefit(t, 1)

	_, err := f.allocations.Assign(context.Background(), "d1", b.ID, 2)
	require.Error(t, err)
	assert.Equal(t, []domain.AuditKind{domain.AuditBenefitCreated}, f.audit.kinds())
}
