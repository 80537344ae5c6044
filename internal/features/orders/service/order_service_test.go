package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"order-tracker/internal/core/auth"
	"order-tracker/internal/core/outbox"
	"order-tracker/internal/features/orders/domain"
	realtime "order-tracker/internal/features/realtime/domain"
	trackingports "order-tracker/internal/features/tracking/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOrderRepository is a mock implementation of ports.OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) FindShippedWithTracking(ctx context.Context) ([]*domain.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

// MockCancellationRepository is a mock implementation of ports.CancellationRepository.
type MockCancellationRepository struct {
	mock.Mock
}

func (m *MockCancellationRepository) Insert(ctx context.Context, req *domain.CancellationRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockCancellationRepository) FindByID(ctx context.Context, id string) (*domain.CancellationRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CancellationRequest), args.Error(1)
}

func (m *MockCancellationRepository) HasPendingForOrder(ctx context.Context, orderID string) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCancellationRepository) Save(ctx context.Context, req *domain.CancellationRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// recordingOutbox collects enqueued records.
type recordingOutbox struct {
	records []*outbox.Record
}

func (o *recordingOutbox) Insert(_ context.Context, rec *outbox.Record) error {
	o.records = append(o.records, rec)
	return nil
}

func (o *recordingOutbox) FindPending(context.Context, int) ([]*outbox.Record, error) {
	return nil, nil
}

func (o *recordingOutbox) MarkPublished(context.Context, []string, time.Time) error {
	return nil
}

func (o *recordingOutbox) DeletePublishedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// passthroughTx runs the unit of work without a real transaction.
type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// noopSnapshots discards invalidations.
type noopSnapshots struct{}

func (noopSnapshots) Get(context.Context, string) (*trackingports.Snapshot, error) { return nil, nil }
func (noopSnapshots) Set(context.Context, string, *trackingports.Snapshot) error  { return nil }
func (noopSnapshots) Invalidate(context.Context, string) error                    { return nil }

func pendingOrder(id, customerID string) *domain.Order {
	return &domain.Order{
		ID:         id,
		CustomerID: customerID,
		Status:     domain.OrderStatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func newTestService(orders *MockOrderRepository, cancellations *MockCancellationRepository, ob *recordingOutbox) *OrderService {
	return NewOrderService(orders, cancellations, ob, passthroughTx{}, noopSnapshots{})
}

func TestOrderService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		orders := new(MockOrderRepository)
		ob := &recordingOutbox{}
		svc := newTestService(orders, new(MockCancellationRepository), ob)

		orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()
		orders.On("Save", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil).Once()

		order, err := svc.UpdateStatus(ctx, "ORD-1", domain.OrderStatusProcessing, "packing")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusProcessing, order.Status)
		orders.AssertExpectations(t)

		require.Len(t, ob.records, 1)
		assert.Equal(t, realtime.EventTrackingUpdated, ob.records[0].EventName)
		var payload realtime.TrackingUpdated
		require.NoError(t, json.Unmarshal(ob.records[0].Payload, &payload))
		assert.Equal(t, "ORD-1", payload.PedidoID)
		assert.Equal(t, "procesando", payload.EstadoPedido)
	})

	t.Run("InvalidTransition", func(t *testing.T) {
		orders := new(MockOrderRepository)
		ob := &recordingOutbox{}
		svc := newTestService(orders, new(MockCancellationRepository), ob)

		orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()

		_, err := svc.UpdateStatus(ctx, "ORD-1", domain.OrderStatusDelivered, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Empty(t, ob.records, "no notification without a persisted change")
	})

	t.Run("NotFound", func(t *testing.T) {
		orders := new(MockOrderRepository)
		svc := newTestService(orders, new(MockCancellationRepository), &recordingOutbox{})

		orders.On("FindByID", mock.Anything, "ORD-404").Return(nil, domain.ErrOrderNotFound).Once()

		_, err := svc.UpdateStatus(ctx, "ORD-404", domain.OrderStatusProcessing, "")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("RetriesOnConcurrentWrite", func(t *testing.T) {
		orders := new(MockOrderRepository)
		ob := &recordingOutbox{}
		svc := newTestService(orders, new(MockCancellationRepository), ob)

		// The first save loses the version race; the retry re-reads the
		// fresh document and wins.
		orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()
		orders.On("Save", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(domain.ErrOrderConflict).Once()
		orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()
		orders.On("Save", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil).Once()

		order, err := svc.UpdateStatus(ctx, "ORD-1", domain.OrderStatusProcessing, "")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusProcessing, order.Status)
		orders.AssertExpectations(t)

		require.Len(t, ob.records, 1, "only the winning attempt enqueues")
	})

	t.Run("PersistentConflictSurfaces", func(t *testing.T) {
		orders := new(MockOrderRepository)
		ob := &recordingOutbox{}
		svc := newTestService(orders, new(MockCancellationRepository), ob)

		for i := 0; i < 3; i++ {
			orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()
		}
		orders.On("Save", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(domain.ErrOrderConflict).Times(3)

		_, err := svc.UpdateStatus(ctx, "ORD-1", domain.OrderStatusProcessing, "")
		assert.ErrorIs(t, err, domain.ErrOrderConflict)
		assert.Empty(t, ob.records)
	})

	t.Run("ShippingCreatesTrackingState", func(t *testing.T) {
		orders := new(MockOrderRepository)
		ob := &recordingOutbox{}
		svc := newTestService(orders, new(MockCancellationRepository), ob)

		order := pendingOrder("ORD-2", "cust-1")
		order.Status = domain.OrderStatusProcessing
		orders.On("FindByID", mock.Anything, "ORD-2").Return(order, nil).Once()
		orders.On("Save", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil).Once()

		updated, err := svc.UpdateStatus(ctx, "ORD-2", domain.OrderStatusShipped, "")
		require.NoError(t, err)
		require.NotNil(t, updated.Seguimiento)
		assert.Empty(t, updated.Seguimiento.History)

		require.Len(t, ob.records, 1)
		var payload realtime.TrackingUpdated
		require.NoError(t, json.Unmarshal(ob.records[0].Payload, &payload))
		require.NotNil(t, payload.Seguimiento)
	})
}

func TestOrderService_RequestCancellation(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		orders := new(MockOrderRepository)
		cancellations := new(MockCancellationRepository)
		svc := newTestService(orders, cancellations, &recordingOutbox{})

		orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()
		cancellations.On("HasPendingForOrder", mock.Anything, "ORD-1").Return(false, nil).Once()
		cancellations.On("Insert", mock.Anything, mock.AnythingOfType("*domain.CancellationRequest")).Return(nil).Once()

		req, err := svc.RequestCancellation(ctx, "ORD-1", "emp-9", "customer changed their mind")
		require.NoError(t, err)
		assert.Equal(t, domain.CancellationPending, req.Status)
		assert.Equal(t, "emp-9", req.RequestedBy)
		assert.NotEmpty(t, req.ID)
		cancellations.AssertExpectations(t)
	})

	t.Run("DuplicatePending", func(t *testing.T) {
		orders := new(MockOrderRepository)
		cancellations := new(MockCancellationRepository)
		svc := newTestService(orders, cancellations, &recordingOutbox{})

		orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()
		cancellations.On("HasPendingForOrder", mock.Anything, "ORD-1").Return(true, nil).Once()

		_, err := svc.RequestCancellation(ctx, "ORD-1", "emp-9", "dup")
		assert.ErrorIs(t, err, domain.ErrCancellationDuplicate)
	})

	t.Run("OrderAlreadyShipped", func(t *testing.T) {
		orders := new(MockOrderRepository)
		svc := newTestService(orders, new(MockCancellationRepository), &recordingOutbox{})

		order := pendingOrder("ORD-3", "cust-1")
		order.Status = domain.OrderStatusShipped
		orders.On("FindByID", mock.Anything, "ORD-3").Return(order, nil).Once()

		_, err := svc.RequestCancellation(ctx, "ORD-3", "emp-9", "too late")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestOrderService_ResolveCancellation(t *testing.T) {
	ctx := context.Background()

	pendingRequest := func() *domain.CancellationRequest {
		return &domain.CancellationRequest{
			ID:          "req-1",
			OrderID:     "ORD-1",
			RequestedBy: "emp-9",
			Status:      domain.CancellationPending,
			CreatedAt:   time.Now(),
		}
	}

	t.Run("ApproveCancelsOrder", func(t *testing.T) {
		orders := new(MockOrderRepository)
		cancellations := new(MockCancellationRepository)
		ob := &recordingOutbox{}
		svc := newTestService(orders, cancellations, ob)

		cancellations.On("FindByID", mock.Anything, "req-1").Return(pendingRequest(), nil).Once()
		orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()
		cancellations.On("Save", mock.Anything, mock.AnythingOfType("*domain.CancellationRequest")).Return(nil).Once()
		orders.On("Save", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
			return o.Status == domain.OrderStatusCancelled
		})).Return(nil).Once()

		req, err := svc.ResolveCancellation(ctx, "req-1", true, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, domain.CancellationApproved, req.Status)
		assert.Equal(t, "admin-1", req.ResolvedBy)

		require.Len(t, ob.records, 1)
		var payload realtime.TrackingUpdated
		require.NoError(t, json.Unmarshal(ob.records[0].Payload, &payload))
		assert.Equal(t, "cancelado", payload.EstadoPedido)
	})

	t.Run("RejectLeavesOrderUntouched", func(t *testing.T) {
		orders := new(MockOrderRepository)
		cancellations := new(MockCancellationRepository)
		ob := &recordingOutbox{}
		svc := newTestService(orders, cancellations, ob)

		cancellations.On("FindByID", mock.Anything, "req-1").Return(pendingRequest(), nil).Once()
		cancellations.On("Save", mock.Anything, mock.AnythingOfType("*domain.CancellationRequest")).Return(nil).Once()

		req, err := svc.ResolveCancellation(ctx, "req-1", false, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, domain.CancellationRejected, req.Status)
		assert.Empty(t, ob.records)
		orders.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("AlreadyResolved", func(t *testing.T) {
		cancellations := new(MockCancellationRepository)
		svc := newTestService(new(MockOrderRepository), cancellations, &recordingOutbox{})

		resolved := pendingRequest()
		resolved.Status = domain.CancellationApproved
		cancellations.On("FindByID", mock.Anything, "req-1").Return(resolved, nil).Once()

		_, err := svc.ResolveCancellation(ctx, "req-1", true, "admin-1")
		assert.ErrorIs(t, err, domain.ErrCancellationResolved)
	})
}

func TestOrderService_AuthorizeSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("StaffAllowedWithoutLookup", func(t *testing.T) {
		orders := new(MockOrderRepository)
		svc := newTestService(orders, new(MockCancellationRepository), &recordingOutbox{})

		claims := &auth.Claims{UserID: "emp-9", Role: auth.RoleEmployee}
		require.NoError(t, svc.AuthorizeSubscription(ctx, claims, "ORD-1"))
		orders.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("OwnerAllowed", func(t *testing.T) {
		orders := new(MockOrderRepository)
		svc := newTestService(orders, new(MockCancellationRepository), &recordingOutbox{})

		orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()

		claims := &auth.Claims{UserID: "cust-1", Role: auth.RoleCustomer}
		assert.NoError(t, svc.AuthorizeSubscription(ctx, claims, "ORD-1"))
	})

	t.Run("StrangerDenied", func(t *testing.T) {
		orders := new(MockOrderRepository)
		svc := newTestService(orders, new(MockCancellationRepository), &recordingOutbox{})

		orders.On("FindByID", mock.Anything, "ORD-1").Return(pendingOrder("ORD-1", "cust-1"), nil).Once()

		claims := &auth.Claims{UserID: "cust-2", Role: auth.RoleCustomer}
		assert.ErrorIs(t, svc.AuthorizeSubscription(ctx, claims, "ORD-1"), ErrSubscriptionDenied)
	})
}
