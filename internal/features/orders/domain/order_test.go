package domain

import (
	"testing"
	"time"

	tracking "order-tracker/internal/features/tracking/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(status OrderStatus) *Order {
	return &Order{
		ID:         "ORD123",
		CustomerID: "cust-1",
		Status:     status,
		CreatedAt:  time.Now(),
	}
}

// TestTransitionTo_AllowedPath walks the happy path through the lifecycle.
func TestTransitionTo_AllowedPath(t *testing.T) {
	o := newOrder(OrderStatusPending)
	now := time.Now()

	require.NoError(t, o.TransitionTo(OrderStatusProcessing, "", now))
	require.NoError(t, o.TransitionTo(OrderStatusShipped, "left warehouse", now))
	assert.True(t, o.Shipped())
	assert.Equal(t, "left warehouse", o.Notes)
	require.NoError(t, o.TransitionTo(OrderStatusDelivered, "", now))
}

// TestTransitionTo_Invalid verifies disallowed and unknown transitions fail.
func TestTransitionTo_Invalid(t *testing.T) {
	now := time.Now()

	o := newOrder(OrderStatusPending)
	err := o.TransitionTo(OrderStatusDelivered, "", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = o.TransitionTo("volando", "", now)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	// Terminal states have no exits.
	o = newOrder(OrderStatusCancelled)
	err = o.TransitionTo(OrderStatusProcessing, "", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	o = newOrder(OrderStatusDelivered)
	err = o.TransitionTo(OrderStatusCancelled, "", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// TestTransitionTo_ShippedCreatesTracking verifies shipping initializes an
// empty tracking state when none was set.
func TestTransitionTo_ShippedCreatesTracking(t *testing.T) {
	o := newOrder(OrderStatusProcessing)
	require.NoError(t, o.TransitionTo(OrderStatusShipped, "", time.Now()))
	require.NotNil(t, o.Seguimiento)
	assert.Empty(t, o.Seguimiento.History)
}

// TestSetTracking_RequiresShipment verifies tracking edits need a shipment.
func TestSetTracking_RequiresShipment(t *testing.T) {
	o := newOrder(OrderStatusPending)
	err := o.SetTracking(tracking.Details{Carrier: "x", TrackingNumber: "1"}, time.Now())
	assert.ErrorIs(t, err, ErrNotShipped)
}

// TestAppendTrackingEvent verifies events accumulate on the shipment.
func TestAppendTrackingEvent(t *testing.T) {
	o := newOrder(OrderStatusProcessing)
	require.NoError(t, o.TransitionTo(OrderStatusShipped, "", time.Now()))

	_, err := o.AppendTrackingEvent("En camino", time.Now())
	require.NoError(t, err)
	_, err = o.AppendTrackingEvent("Entregado", time.Now())
	require.NoError(t, err)

	require.Len(t, o.Seguimiento.History, 2)
	assert.Equal(t, "En camino", o.Seguimiento.History[0].Status)
}

// TestCancellationRequest_Resolve verifies the approval queue transitions.
func TestCancellationRequest_Resolve(t *testing.T) {
	now := time.Now()
	r := &CancellationRequest{
		ID:      "req-1",
		OrderID: "ORD123",
		Status:  CancellationPending,
	}

	require.NoError(t, r.Resolve(true, "admin-1", now))
	assert.Equal(t, CancellationApproved, r.Status)
	assert.Equal(t, "admin-1", r.ResolvedBy)

	err := r.Resolve(false, "admin-2", now)
	assert.ErrorIs(t, err, ErrCancellationResolved)
	assert.Equal(t, CancellationApproved, r.Status)
}

// TestOwnedBy verifies ownership checks.
func TestOwnedBy(t *testing.T) {
	o := newOrder(OrderStatusPending)
	assert.True(t, o.OwnedBy("cust-1"))
	assert.False(t, o.OwnedBy("cust-2"))
}
