package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-tracker/internal/core/auth"
	"order-tracker/internal/core/logger"
	"order-tracker/internal/core/outbox"
	"order-tracker/internal/features/orders/domain"
	"order-tracker/internal/features/orders/ports"
	realtime "order-tracker/internal/features/realtime/domain"
	trackingports "order-tracker/internal/features/tracking/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSubscriptionDenied is returned when a principal may not watch an order.
var ErrSubscriptionDenied = errors.New("not allowed to watch this order")

// OrderService orchestrates the order lifecycle and the cancellation
// approval queue. Every mutation that subscribers care about is persisted
// together with its outbox record in one transaction; the dispatcher picks
// the record up and broadcasts it.
type OrderService struct {
	orders        ports.OrderRepository
	cancellations ports.CancellationRepository
	outbox        outbox.Repository
	tx            ports.Transactor
	snapshots     trackingports.SnapshotRepository
	logger        *zap.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(orders ports.OrderRepository, cancellations ports.CancellationRepository, ob outbox.Repository, tx ports.Transactor, snapshots trackingports.SnapshotRepository) *OrderService {
	return &OrderService{
		orders:        orders,
		cancellations: cancellations,
		outbox:        ob,
		tx:            tx,
		snapshots:     snapshots,
		logger:        logger.Named("orders"),
	}
}

// GetOrder loads one order.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.FindByID(ctx, id)
}

// UpdateStatus moves an order to a new lifecycle state and enqueues the
// matching realtime notification.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, next domain.OrderStatus, notes string) (*domain.Order, error) {
	var order *domain.Order
	err := retryOnConflict(func() error {
		var err error
		order, err = s.orders.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := order.TransitionTo(next, notes, time.Now()); err != nil {
			return err
		}
		return s.saveWithNotification(ctx, order, string(next))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status updated",
		zap.String("order_id", order.ID),
		zap.String("status", string(next)),
	)
	return order, nil
}

// RequestCancellation files a cancellation request for an order. The order
// must still be cancellable and must not already have a pending request.
func (s *OrderService) RequestCancellation(ctx context.Context, orderID, requestedBy, reason string) (*domain.CancellationRequest, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusProcessing {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, domain.OrderStatusCancelled)
	}

	pending, err := s.cancellations.HasPendingForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, domain.ErrCancellationDuplicate
	}

	req := &domain.CancellationRequest{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		RequestedBy: requestedBy,
		Reason:      reason,
		Status:      domain.CancellationPending,
		CreatedAt:   time.Now(),
	}
	if err := s.cancellations.Insert(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("cancellation requested",
		zap.String("order_id", orderID),
		zap.String("request_id", req.ID),
	)
	return req, nil
}

// ResolveCancellation decides a pending request. Approval cancels the order
// through the same notification path as any other status change, so room
// subscribers see it.
func (s *OrderService) ResolveCancellation(ctx context.Context, requestID string, approve bool, adminID string) (*domain.CancellationRequest, error) {
	req, err := s.cancellations.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if err := req.Resolve(approve, adminID, time.Now()); err != nil {
		return nil, err
	}

	if !approve {
		if err := s.cancellations.Save(ctx, req); err != nil {
			return nil, err
		}
		return req, nil
	}

	var order *domain.Order
	err = retryOnConflict(func() error {
		var err error
		order, err = s.orders.FindByID(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if err := order.TransitionTo(domain.OrderStatusCancelled, "", time.Now()); err != nil {
			return err
		}
		return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.cancellations.Save(txCtx, req); err != nil {
				return err
			}
			if err := s.orders.Save(txCtx, order); err != nil {
				return err
			}
			return s.enqueueStatusEvent(txCtx, order, string(domain.OrderStatusCancelled))
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSnapshot(ctx, order.ID)

	s.logger.Info("cancellation approved",
		zap.String("order_id", order.ID),
		zap.String("request_id", req.ID),
		zap.String("admin_id", adminID),
	)
	return req, nil
}

// AuthorizeSubscription allows staff and the order's owner to watch an
// order's room.
func (s *OrderService) AuthorizeSubscription(ctx context.Context, claims *auth.Claims, orderID string) error {
	if claims.IsStaff() {
		return nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.OwnedBy(claims.UserID) {
		return ErrSubscriptionDenied
	}
	return nil
}

// saveWithNotification persists the order and its status notification in
// one transaction, then drops the stale tracking snapshot.
func (s *OrderService) saveWithNotification(ctx context.Context, order *domain.Order, estado string) error {
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.orders.Save(txCtx, order); err != nil {
			return err
		}
		return s.enqueueStatusEvent(txCtx, order, estado)
	})
	if err != nil {
		return err
	}

	s.invalidateSnapshot(ctx, order.ID)
	return nil
}

// saveAttempts bounds how often a write is retried after losing an
// optimistic-lock race against a concurrent order writer.
const saveAttempts = 3

// retryOnConflict re-runs a read-mutate-save cycle that lost the version
// check, so a transition never overwrites state another writer just
// persisted.
func retryOnConflict(fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if !errors.Is(err, domain.ErrOrderConflict) || attempt >= saveAttempts {
			return err
		}
	}
}

// invalidateSnapshot is best-effort: a stale entry expires on its own TTL.
func (s *OrderService) invalidateSnapshot(ctx context.Context, orderID string) {
	if err := s.snapshots.Invalidate(ctx, orderID); err != nil {
		s.logger.Warn("failed to invalidate tracking snapshot",
			zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *OrderService) enqueueStatusEvent(ctx context.Context, order *domain.Order, estado string) error {
	rec, err := outbox.NewRecord(order.ID, realtime.EventTrackingUpdated, realtime.TrackingUpdated{
		PedidoID:     order.ID,
		Seguimiento:  order.Seguimiento,
		EstadoPedido: estado,
	})
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, rec)
}
