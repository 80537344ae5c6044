package service

import (
	"context"
	"sync"
	"time"

	"order-tracker/internal/core/logger"
	"order-tracker/internal/features/carriers/ports"
	ordersdomain "order-tracker/internal/features/orders/domain"
	orderports "order-tracker/internal/features/orders/ports"
	tracking "order-tracker/internal/features/tracking/domain"

	"go.uber.org/zap"
)

// EventAppender records one new tracking event for an order. Satisfied by
// the tracking service, so carrier-sourced events take the same
// persistence-and-notify path as staff-entered ones.
type EventAppender interface {
	AppendEvent(ctx context.Context, orderID, status string, at time.Time) (*tracking.TrackingState, error)
}

// Refresher periodically asks carrier providers for the current history of
// every shipped order and appends whatever the stored history is missing.
type Refresher struct {
	orders    orderports.OrderRepository
	providers []ports.CarrierProvider
	appender  EventAppender
	interval  time.Duration
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a Refresher.
func NewRefresher(orders orderports.OrderRepository, providers []ports.CarrierProvider, appender EventAppender, interval time.Duration) *Refresher {
	return &Refresher{
		orders:    orders,
		providers: providers,
		appender:  appender,
		interval:  interval,
		logger:    logger.Named("carriers"),
	}
}

// Start launches the refresh loop.
func (r *Refresher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("carrier refresher started", zap.Duration("interval", r.interval))
}

// Stop gracefully stops the loop, waiting up to the context deadline.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("carrier refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll runs one refresh pass over every shipped order.
func (r *Refresher) RefreshAll(ctx context.Context) {
	orders, err := r.orders.FindShippedWithTracking(ctx)
	if err != nil {
		r.logger.Error("failed to list shipped orders", zap.Error(err))
		return
	}

	for _, order := range orders {
		if err := r.refreshOrder(ctx, order); err != nil {
			r.logger.Warn("carrier refresh failed",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// refreshOrder appends the tail of the carrier's history the stored order
// does not have yet. The stored history is append-only, so anything past
// its current length is new.
func (r *Refresher) refreshOrder(ctx context.Context, order *ordersdomain.Order) error {
	state := order.Seguimiento
	if state == nil {
		// The query matches documents missing the subdocument entirely.
		return nil
	}
	provider := r.providerFor(state.Carrier)
	if provider == nil {
		return nil
	}

	fetched, err := provider.FetchHistory(ctx, state.TrackingNumber)
	if err != nil {
		return err
	}
	if len(fetched) <= len(state.History) {
		return nil
	}

	for _, event := range fetched[len(state.History):] {
		if _, err := r.appender.AppendEvent(ctx, order.ID, event.Status, event.Timestamp); err != nil {
			return err
		}
	}

	r.logger.Info("appended carrier events",
		zap.String("order_id", order.ID),
		zap.String("carrier", state.Carrier),
		zap.Int("new_events", len(fetched)-len(state.History)),
	)
	return nil
}

func (r *Refresher) providerFor(carrier string) ports.CarrierProvider {
	for _, p := range r.providers {
		if p.SupportsCarrier(carrier) {
			return p
		}
	}
	return nil
}
