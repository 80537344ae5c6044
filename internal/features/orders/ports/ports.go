package ports

import (
	"context"

	"order-tracker/internal/features/orders/domain"
)

// Transactor runs a function inside a storage transaction. The context
// passed to fn is transaction-bound and must be used for every write that
// belongs to the unit of work.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository defines the secondary port for order storage.
type OrderRepository interface {
	// FindByID loads one order. Returns domain.ErrOrderNotFound when absent.
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	// Save upserts the order.
	Save(ctx context.Context, order *domain.Order) error
	// FindShippedWithTracking returns shipped orders that carry a tracking
	// number, for the carrier refresh poller.
	FindShippedWithTracking(ctx context.Context) ([]*domain.Order, error)
}

// CancellationRepository defines the secondary port for the cancellation
// approval queue.
type CancellationRepository interface {
	// Insert stores a new request.
	Insert(ctx context.Context, req *domain.CancellationRequest) error
	// FindByID loads one request. Returns domain.ErrCancellationNotFound
	// when absent.
	FindByID(ctx context.Context, id string) (*domain.CancellationRequest, error)
	// HasPendingForOrder reports whether the order already has an
	// undecided request.
	HasPendingForOrder(ctx context.Context, orderID string) (bool, error)
	// Save persists a resolved request.
	Save(ctx context.Context, req *domain.CancellationRequest) error
}
