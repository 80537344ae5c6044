package outbox

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Broadcaster delivers one event to every subscriber of an order's room.
// Implemented by the notification hub.
type Broadcaster interface {
	Broadcast(orderID, event string, payload any) int
}

// DispatcherConfig tunes the dispatch loop.
type DispatcherConfig struct {
	// PollInterval is the polling period for pending records.
	PollInterval time.Duration
	// BatchSize is the maximum records handled per poll.
	BatchSize int
	// Retention is how long published records are kept before cleanup.
	Retention time.Duration
}

// DefaultDispatcherConfig returns the default loop tuning.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    100,
		Retention:    7 * 24 * time.Hour,
	}
}

// Dispatcher drains the outbox into the notification hub. End-to-end the
// path is at-least-once for connected subscribers: a record stays pending
// until it has been handed to the hub, and the hub's per-room delivery is
// best effort.
type Dispatcher struct {
	repo        Repository
	broadcaster Broadcaster
	config      DispatcherConfig
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(repo Repository, broadcaster Broadcaster, config DispatcherConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		broadcaster: broadcaster,
		config:      config,
		logger:      logger,
	}
}

// Start launches the dispatch and cleanup loops.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(2)
	go d.dispatchLoop(ctx)
	go d.cleanupLoop(ctx)

	d.logger.Info("outbox dispatcher started",
		zap.Duration("poll_interval", d.config.PollInterval),
		zap.Int("batch_size", d.config.BatchSize),
	)
}

// Stop gracefully stops the loops, waiting up to the context deadline.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("outbox dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) dispatchLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchBatch(ctx)
		}
	}
}

// dispatchBatch hands one batch of pending records to the hub.
func (d *Dispatcher) dispatchBatch(ctx context.Context) {
	records, err := d.repo.FindPending(ctx, d.config.BatchSize)
	if err != nil {
		d.logger.Error("failed to fetch pending outbox records", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	published := make([]string, 0, len(records))
	for _, rec := range records {
		delivered := d.broadcaster.Broadcast(rec.OrderID, rec.EventName, json.RawMessage(rec.Payload))
		d.logger.Debug("dispatched outbox record",
			zap.String("record_id", rec.ID),
			zap.String("event", rec.EventName),
			zap.String("order_id", rec.OrderID),
			zap.Int("delivered", delivered),
		)
		published = append(published, rec.ID)
	}

	if err := d.repo.MarkPublished(ctx, published, time.Now()); err != nil {
		// Records stay pending and will be re-broadcast next poll.
		d.logger.Error("failed to mark outbox records published", zap.Error(err))
	}
}

func (d *Dispatcher) cleanupLoop(ctx context.Context) {
	defer d.wg.Done()

	interval := d.config.Retention / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := d.repo.DeletePublishedBefore(ctx, time.Now().Add(-d.config.Retention))
			if err != nil {
				d.logger.Error("outbox cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				d.logger.Debug("cleaned up outbox records", zap.Int64("deleted", deleted))
			}
		}
	}
}
