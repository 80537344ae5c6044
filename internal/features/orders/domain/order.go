package domain

import (
	"errors"
	"fmt"
	"time"

	tracking "order-tracker/internal/features/tracking/domain"
)

// OrderStatus represents the current state of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed but not yet taken up.
	OrderStatusPending OrderStatus = "pendiente"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "procesando"
	// OrderStatusShipped indicates the order was handed to the carrier.
	OrderStatusShipped OrderStatus = "enviado"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "entregado"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelado"
)

var (
	// ErrOrderNotFound is returned when the order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidStatus is returned for unknown status values.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidTransition is returned for disallowed status changes.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotShipped is returned for tracking operations on unshipped orders.
	ErrNotShipped = errors.New("order has no shipment yet")
	// ErrOrderConflict is returned when a save lost the race against a
	// concurrent writer and the caller must re-read and retry.
	ErrOrderConflict = errors.New("order was modified concurrently")
)

// transitions is the allowed status graph. Terminal states have no exits.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s OrderStatus) bool {
	_, ok := transitions[s]
	return ok
}

// OrderItem represents one purchased product line.
type OrderItem struct {
	// SKU is the product identifier.
	SKU string `json:"sku" bson:"sku"`
	// Name is the product name at purchase time.
	Name string `json:"name" bson:"name"`
	// Quantity is the number of units purchased.
	Quantity int `json:"quantity" bson:"quantity"`
	// UnitPrice is the price per unit in cents.
	UnitPrice int64 `json:"unitPrice" bson:"unit_price"`
}

// Order represents a customer order in the storefront.
type Order struct {
	// ID is the unique order identifier.
	ID string `json:"id" bson:"_id"`
	// CustomerID identifies the customer who placed the order.
	CustomerID string `json:"customerId" bson:"customer_id"`
	// Status is the current lifecycle state.
	Status OrderStatus `json:"estado" bson:"status"`
	// Notes holds free-form staff annotations from status changes.
	Notes string `json:"notas,omitempty" bson:"notes,omitempty"`
	// Items are the purchased product lines.
	Items []OrderItem `json:"items" bson:"items"`
	// Seguimiento is the shipment tracking state, set once the order ships.
	Seguimiento *tracking.TrackingState `json:"seguimiento,omitempty" bson:"seguimiento,omitempty"`
	// CreatedAt is when the order was placed.
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	// UpdatedAt is the last mutation time.
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
	// Version guards saves against concurrent writers. It is bumped on
	// every successful save; a stale version fails with ErrOrderConflict.
	Version int64 `json:"-" bson:"version"`
}

// OwnedBy reports whether the order belongs to the given customer.
func (o *Order) OwnedBy(customerID string) bool {
	return o.CustomerID == customerID
}

// Shipped reports whether the order has a shipment attached.
func (o *Order) Shipped() bool {
	return o.Seguimiento != nil
}

// TransitionTo moves the order to a new status, enforcing the lifecycle
// graph. Shipping an order without tracking details creates an empty
// TrackingState so events can be appended later.
func (o *Order) TransitionTo(next OrderStatus, notes string, now time.Time) error {
	if !ValidStatus(next) {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, next)
	}

	allowed := false
	for _, s := range transitions[o.Status] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}

	o.Status = next
	if notes != "" {
		o.Notes = notes
	}
	o.UpdatedAt = now

	if next == OrderStatusShipped && o.Seguimiento == nil {
		o.Seguimiento = &tracking.TrackingState{History: []tracking.TrackingEvent{}}
	}
	return nil
}

// SetTracking replaces the shipment's carrier details. The order must have
// shipped first; the event history is preserved.
func (o *Order) SetTracking(d tracking.Details, now time.Time) error {
	if o.Seguimiento == nil {
		return ErrNotShipped
	}
	if err := o.Seguimiento.ApplyDetails(d); err != nil {
		return err
	}
	o.UpdatedAt = now
	return nil
}

// AppendTrackingEvent adds one event to the shipment history.
func (o *Order) AppendTrackingEvent(status string, now time.Time) (tracking.TrackingEvent, error) {
	if o.Seguimiento == nil {
		return tracking.TrackingEvent{}, ErrNotShipped
	}
	event, err := o.Seguimiento.Append(status, now)
	if err != nil {
		return tracking.TrackingEvent{}, err
	}
	o.UpdatedAt = now
	return event, nil
}
