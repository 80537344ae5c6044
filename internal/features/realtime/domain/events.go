package domain

import (
	"encoding/json"

	tracking "order-tracker/internal/features/tracking/domain"
)

// Event names exchanged over the realtime channel.
const (
	// EventJoinOrderRoom is sent by clients to subscribe to an order's room.
	EventJoinOrderRoom = "joinOrderRoom"
	// EventTrackingUpdated replaces the subscriber's full tracking state.
	EventTrackingUpdated = "trackingUpdated"
	// EventTrackingEventAdded signals a single history append. The payload
	// still carries the full updated history; consumers treat it as a
	// replace.
	EventTrackingEventAdded = "trackingEventAdded"
	// EventJoinRejected tells a client its room subscription was denied.
	EventJoinRejected = "joinRejected"
)

// Envelope is the wire frame for every realtime message, both directions.
type Envelope struct {
	// Event is the event name.
	Event string `json:"event"`
	// Data is the event payload, decoded per event name.
	Data json.RawMessage `json:"data,omitempty"`
}

// TrackingUpdated is the payload of EventTrackingUpdated.
type TrackingUpdated struct {
	// PedidoID is the order identifier.
	PedidoID string `json:"pedidoId"`
	// Seguimiento is the full tracking state, nil when the order has not shipped.
	Seguimiento *tracking.TrackingState `json:"seguimiento"`
	// EstadoPedido carries the new order status when the update was caused
	// by a status change.
	EstadoPedido string `json:"estadoPedido,omitempty"`
}

// TrackingEventAdded is the payload of EventTrackingEventAdded.
type TrackingEventAdded struct {
	// PedidoID is the order identifier.
	PedidoID string `json:"pedidoId"`
	// Seguimiento is the full tracking state including the new event.
	Seguimiento *tracking.TrackingState `json:"seguimiento"`
}

// JoinRejected is the payload of EventJoinRejected.
type JoinRejected struct {
	// PedidoID is the order whose room was requested.
	PedidoID string `json:"pedidoId"`
	// Reason is a short, human-readable denial reason.
	Reason string `json:"reason"`
}

// RoomName returns the broadcast room for an order id.
func RoomName(orderID string) string {
	return "order-" + orderID
}
