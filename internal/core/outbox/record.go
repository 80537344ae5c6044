package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the publication state of an outbox record.
type Status string

const (
	// StatusPending means the record has not been broadcast yet.
	StatusPending Status = "pending"
	// StatusPublished means the dispatcher has broadcast the record.
	StatusPublished Status = "published"
)

// Record is one event awaiting broadcast. It is written in the same
// transaction as the order mutation that caused it, so a crash between
// persisting and broadcasting can no longer lose the notification: the
// dispatcher replays anything still pending.
type Record struct {
	// ID is the unique record identifier.
	ID string `bson:"_id"`
	// OrderID is the room the event targets.
	OrderID string `bson:"order_id"`
	// EventName is the realtime event name to emit.
	EventName string `bson:"event_name"`
	// Payload is the JSON-encoded event payload.
	Payload []byte `bson:"payload"`
	// Status is the publication state.
	Status Status `bson:"status"`
	// Attempts counts dispatch passes that picked the record up,
	// including ones that failed to mark it published.
	Attempts int `bson:"attempts"`
	// CreatedAt is when the record was enqueued.
	CreatedAt time.Time `bson:"created_at"`
	// PublishedAt is when the record was broadcast.
	PublishedAt *time.Time `bson:"published_at,omitempty"`
}

// NewRecord builds a pending record with a serialized payload.
func NewRecord(orderID, eventName string, payload any) (*Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventName, err)
	}
	return &Record{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		EventName: eventName,
		Payload:   data,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}, nil
}

// Repository is the secondary port for outbox persistence.
type Repository interface {
	// Insert enqueues a record. Callers pass a transaction-bound context
	// so the enqueue commits with the order mutation.
	Insert(ctx context.Context, rec *Record) error
	// FindPending returns up to limit pending records, oldest first.
	FindPending(ctx context.Context, limit int) ([]*Record, error)
	// MarkPublished flips records to published.
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
	// DeletePublishedBefore removes published records older than cutoff
	// and returns how many were deleted.
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
