package ports

import (
	"context"

	tracking "order-tracker/internal/features/tracking/domain"
)

// CarrierProvider fetches the current shipment history from one carrier.
type CarrierProvider interface {
	// FetchHistory returns the carrier's view of the shipment history,
	// oldest first.
	FetchHistory(ctx context.Context, trackingNumber string) ([]tracking.TrackingEvent, error)
	// SupportsCarrier returns true if this provider handles the given
	// carrier name.
	SupportsCarrier(carrier string) bool
}
