package service

import (
	"context"
	"errors"
	"time"

	"order-tracker/internal/core/logger"
	"order-tracker/internal/core/outbox"
	ordersdomain "order-tracker/internal/features/orders/domain"
	orderports "order-tracker/internal/features/orders/ports"
	realtime "order-tracker/internal/features/realtime/domain"
	"order-tracker/internal/features/tracking/domain"
	"order-tracker/internal/features/tracking/ports"

	"go.uber.org/zap"
)

// TrackingService serves shipment tracking reads through a cache-aside
// snapshot and funnels every tracking write through the transactional
// notification path.
type TrackingService struct {
	orders    orderports.OrderRepository
	snapshots ports.SnapshotRepository
	outbox    outbox.Repository
	tx        orderports.Transactor
	logger    *zap.Logger
}

// NewTrackingService creates a TrackingService.
func NewTrackingService(orders orderports.OrderRepository, snapshots ports.SnapshotRepository, ob outbox.Repository, tx orderports.Transactor) *TrackingService {
	return &TrackingService{
		orders:    orders,
		snapshots: snapshots,
		outbox:    ob,
		tx:        tx,
		logger:    logger.Named("tracking"),
	}
}

// GetSnapshot returns the shipment snapshot for an order, serving from the
// cache when possible. The order must have shipped.
func (s *TrackingService) GetSnapshot(ctx context.Context, orderID string) (*ports.Snapshot, error) {
	snap, err := s.snapshots.Get(ctx, orderID)
	if err != nil {
		// A broken cache degrades to a storage read.
		s.logger.Warn("tracking snapshot read failed", zap.String("order_id", orderID), zap.Error(err))
	}
	if snap != nil {
		return snap, nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Shipped() {
		return nil, ordersdomain.ErrNotShipped
	}

	snap = &ports.Snapshot{
		CustomerID:  order.CustomerID,
		Estado:      string(order.Status),
		Seguimiento: order.Seguimiento,
	}
	if err := s.snapshots.Set(ctx, orderID, snap); err != nil {
		s.logger.Warn("tracking snapshot write failed", zap.String("order_id", orderID), zap.Error(err))
	}
	return snap, nil
}

// UpdateDetails replaces the shipment's carrier fields and notifies room
// subscribers with the full tracking state.
func (s *TrackingService) UpdateDetails(ctx context.Context, orderID string, details domain.Details) (*domain.TrackingState, error) {
	now := time.Now()
	order, err := s.mutateOrder(ctx, orderID, func(o *ordersdomain.Order) (string, any, error) {
		if err := o.SetTracking(details, now); err != nil {
			return "", nil, err
		}
		return realtime.EventTrackingUpdated, realtime.TrackingUpdated{
			PedidoID:    o.ID,
			Seguimiento: o.Seguimiento,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tracking details updated",
		zap.String("order_id", orderID),
		zap.String("carrier", details.Carrier),
	)
	return order.Seguimiento, nil
}

// AppendEvent appends one status entry to the shipment history and notifies
// room subscribers with the complete updated history. A zero timestamp
// means now.
func (s *TrackingService) AppendEvent(ctx context.Context, orderID, status string, at time.Time) (*domain.TrackingState, error) {
	if at.IsZero() {
		at = time.Now()
	}

	order, err := s.mutateOrder(ctx, orderID, func(o *ordersdomain.Order) (string, any, error) {
		if _, err := o.AppendTrackingEvent(status, at); err != nil {
			return "", nil, err
		}
		return realtime.EventTrackingEventAdded, realtime.TrackingEventAdded{
			PedidoID:    o.ID,
			Seguimiento: o.Seguimiento,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tracking event appended",
		zap.String("order_id", orderID),
		zap.String("status", status),
	)
	return order.Seguimiento, nil
}

// saveAttempts bounds how often a write is retried after losing an
// optimistic-lock race against a concurrent order writer.
const saveAttempts = 3

// mutateOrder runs one read-mutate-save cycle: it loads the order, applies
// mutate, and persists order plus notification record in one transaction.
// When the save loses against a concurrent writer the cycle restarts on the
// fresh document, so no previously persisted history entry is ever clobbered.
func (s *TrackingService) mutateOrder(ctx context.Context, orderID string, mutate func(*ordersdomain.Order) (string, any, error)) (*ordersdomain.Order, error) {
	for attempt := 1; ; attempt++ {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		event, payload, err := mutate(order)
		if err != nil {
			return nil, err
		}

		err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.orders.Save(txCtx, order); err != nil {
				return err
			}
			rec, err := outbox.NewRecord(order.ID, event, payload)
			if err != nil {
				return err
			}
			return s.outbox.Insert(txCtx, rec)
		})
		if errors.Is(err, ordersdomain.ErrOrderConflict) && attempt < saveAttempts {
			s.logger.Debug("order save lost a concurrent write, retrying",
				zap.String("order_id", orderID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		s.invalidateSnapshot(ctx, orderID)
		return order, nil
	}
}

func (s *TrackingService) invalidateSnapshot(ctx context.Context, orderID string) {
	if err := s.snapshots.Invalidate(ctx, orderID); err != nil {
		s.logger.Warn("failed to invalidate tracking snapshot",
			zap.String("order_id", orderID), zap.Error(err))
	}
}
