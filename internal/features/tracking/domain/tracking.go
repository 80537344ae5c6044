package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmptyStatus is returned when appending an event without a status text.
	ErrEmptyStatus = errors.New("tracking event status is required")
	// ErrMissingCarrier is returned when tracking details lack a carrier.
	ErrMissingCarrier = errors.New("carrier is required")
	// ErrMissingTrackingNumber is returned when tracking details lack a number.
	ErrMissingTrackingNumber = errors.New("tracking number is required")
)

// TrackingState is the shipment-tracking snapshot attached to an order
// ("seguimiento" on the wire). It is created when the order ships and is
// never deleted afterwards.
type TrackingState struct {
	// TrackingNumber is the carrier-issued shipment identifier.
	TrackingNumber string `json:"trackingNumber" bson:"tracking_number"`
	// Carrier is the shipping company handling the order.
	Carrier string `json:"carrier" bson:"carrier"`
	// TrackingURL is an optional deep link into the carrier's tracking page.
	TrackingURL string `json:"trackingUrl,omitempty" bson:"tracking_url,omitempty"`
	// EstimatedDelivery is the carrier's delivery estimate.
	EstimatedDelivery time.Time `json:"estimatedDelivery,omitempty" bson:"estimated_delivery,omitempty"`
	// History holds the chronological tracking events, oldest first.
	History []TrackingEvent `json:"history" bson:"history"`
}

// TrackingEvent is one immutable, timestamped status entry in the history.
type TrackingEvent struct {
	// Status is the human-readable status text.
	Status string `json:"status" bson:"status"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Details are the mutable carrier fields of a TrackingState, as edited by
// order-management staff.
type Details struct {
	// TrackingNumber is the carrier-issued shipment identifier.
	TrackingNumber string `json:"trackingNumber"`
	// Carrier is the shipping company handling the order.
	Carrier string `json:"carrier"`
	// TrackingURL is an optional deep link into the carrier's tracking page.
	TrackingURL string `json:"trackingUrl,omitempty"`
	// EstimatedDelivery is the carrier's delivery estimate.
	EstimatedDelivery time.Time `json:"estimatedDelivery,omitempty"`
}

// Validate checks that the details identify a shipment.
func (d Details) Validate() error {
	if strings.TrimSpace(d.Carrier) == "" {
		return ErrMissingCarrier
	}
	if strings.TrimSpace(d.TrackingNumber) == "" {
		return ErrMissingTrackingNumber
	}
	return nil
}

// New creates a TrackingState from carrier details with an empty history.
func New(d Details) (*TrackingState, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &TrackingState{
		TrackingNumber:    d.TrackingNumber,
		Carrier:           d.Carrier,
		TrackingURL:       d.TrackingURL,
		EstimatedDelivery: d.EstimatedDelivery,
		History:           []TrackingEvent{},
	}, nil
}

// ApplyDetails replaces the carrier fields, leaving the history untouched.
func (s *TrackingState) ApplyDetails(d Details) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.TrackingNumber = d.TrackingNumber
	s.Carrier = d.Carrier
	s.TrackingURL = d.TrackingURL
	s.EstimatedDelivery = d.EstimatedDelivery
	return nil
}

// Append adds one event to the end of the history. Existing entries are
// never reordered or removed.
func (s *TrackingState) Append(status string, at time.Time) (TrackingEvent, error) {
	if strings.TrimSpace(status) == "" {
		return TrackingEvent{}, ErrEmptyStatus
	}
	event := TrackingEvent{Status: status, Timestamp: at}
	s.History = append(s.History, event)
	return event, nil
}

// LastEvent returns the most recent event, or false if the history is empty.
func (s *TrackingState) LastEvent() (TrackingEvent, bool) {
	if len(s.History) == 0 {
		return TrackingEvent{}, false
	}
	return s.History[len(s.History)-1], true
}
