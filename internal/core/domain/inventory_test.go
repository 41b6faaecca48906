package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocation_Scenario(t *testing.T) {
	a := NewAllocation("d1", "b1")
	require.True(t, a.IsZero())

	require.NoError(t, a.Credit(4, testNow))
	assert.Equal(t, 4, a.AssignedQuantity)
	assert.Equal(t, 4, a.RemainingQuantity)
	assert.Equal(t, testNow, a.AssignedAt)

	require.NoError(t, a.DebitRemaining(testNow))
	assert.Equal(t, 3, a.RemainingQuantity)
	assert.Equal(t, 1, a.Delivered())

	err := a.DebitAssigned(4, testNow)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 4, a.AssignedQuantity)

	require.NoError(t, a.DebitAssigned(3, testNow))
	assert.Equal(t, 1, a.AssignedQuantity)
	assert.Equal(t, 0, a.RemainingQuantity)
	assert.NoError(t, a.CheckInvariant())
}

func TestAllocation_DebitAssignedToZeroClearsTimestamps(t *testing.T) {
	a := NewAllocation("d1", "b1")
	require.NoError(t, a.Credit(5, testNow))
	require.NoError(t, a.DebitAssigned(5, testNow.Add(time.Hour)))

	assert.Equal(t, NewAllocation("d1", "b1"), a)
}

func TestAllocation_DebitRemainingWhenEmpty(t *testing.T) {
	a := NewAllocation("d1", "b1")
	assert.ErrorIs(t, a.DebitRemaining(testNow), ErrInsufficientStock)
}

func TestAllocation_CreditRemainingBeyondAssigned(t *testing.T) {
	a := NewAllocation("d1", "b1")
	require.NoError(t, a.Credit(2, testNow))

	err := a.CreditRemaining(testNow)
	assert.ErrorIs(t, err, ErrLedgerCorruption)
	assert.Equal(t, 2, a.RemainingQuantity)

	require.NoError(t, a.DebitRemaining(testNow))
	require.NoError(t, a.CreditRemaining(testNow))
	assert.Equal(t, 2, a.RemainingQuantity)
}

func TestAllocation_InvalidQuantity(t *testing.T) {
	a := NewAllocation("d1", "b1")
	assert.ErrorIs(t, a.Credit(0, testNow), ErrValidation)
	assert.ErrorIs(t, a.DebitAssigned(-1, testNow), ErrValidation)
}
