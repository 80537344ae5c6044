package ports

import (
	"context"

	"order-tracker/internal/features/tracking/domain"
)

// Snapshot is the cached read model for a shipment. The owner id travels
// with the tracking state so read authorization never needs a second
// storage round trip on a cache hit.
type Snapshot struct {
	// CustomerID is the owner of the order the shipment belongs to.
	CustomerID string `json:"customerId"`
	// Estado is the order status at snapshot time.
	Estado string `json:"estado"`
	// Seguimiento is the full tracking state.
	Seguimiento *domain.TrackingState `json:"seguimiento"`
}

// SnapshotRepository defines the secondary port for the tracking read cache.
type SnapshotRepository interface {
	// Get retrieves the cached snapshot, or (nil, nil) on a miss.
	Get(ctx context.Context, orderID string) (*Snapshot, error)
	// Set stores the snapshot.
	Set(ctx context.Context, orderID string, snap *Snapshot) error
	// Invalidate drops the snapshot after a write.
	Invalidate(ctx context.Context, orderID string) error
}
