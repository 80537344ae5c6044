package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordedEvent captures one delivered frame.
type recordedEvent struct {
	Event   string
	Payload any
}

// fakeConn is an in-memory Conn implementation for hub tests.
type fakeConn struct {
	id      string
	mu      sync.Mutex
	events  []recordedEvent
	sendErr error
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.events = append(f.events, recordedEvent{Event: event, Payload: payload})
	return nil
}

func (f *fakeConn) received() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedEvent, len(f.events))
	copy(out, f.events)
	return out
}

// TestHub_RoomIsolation verifies a connection subscribed to order X never
// receives events emitted to order Y.
func TestHub_RoomIsolation(t *testing.T) {
	h := New(zap.NewNop())
	connX := &fakeConn{id: "x"}
	connY := &fakeConn{id: "y"}

	h.Join(connX, "ORD-X")
	h.Join(connY, "ORD-Y")

	delivered := h.Broadcast("ORD-Y", "trackingUpdated", "payload")
	assert.Equal(t, 1, delivered)

	assert.Empty(t, connX.received())
	require.Len(t, connY.received(), 1)
	assert.Equal(t, "trackingUpdated", connY.received()[0].Event)
}

// TestHub_FanOut verifies every subscriber of a room receives exactly one
// copy of each broadcast.
func TestHub_FanOut(t *testing.T) {
	h := New(zap.NewNop())
	tab1 := &fakeConn{id: "tab1"}
	tab2 := &fakeConn{id: "tab2"}

	h.Join(tab1, "ORD123")
	h.Join(tab2, "ORD123")

	delivered := h.Broadcast("ORD123", "trackingUpdated", "enviado")
	assert.Equal(t, 2, delivered)
	assert.Len(t, tab1.received(), 1)
	assert.Len(t, tab2.received(), 1)
}

// TestHub_EmptyRoomSilentDrop verifies broadcasting to an empty room
// delivers nothing and does not error.
func TestHub_EmptyRoomSilentDrop(t *testing.T) {
	h := New(zap.NewNop())
	assert.Equal(t, 0, h.Broadcast("ORD-NOBODY", "trackingUpdated", nil))
}

// TestHub_NoBackfill verifies a late joiner only sees events emitted after
// it joined.
func TestHub_NoBackfill(t *testing.T) {
	h := New(zap.NewNop())

	early := &fakeConn{id: "early"}
	h.Join(early, "ORD123")
	h.Broadcast("ORD123", "trackingEventAdded", "ev1")
	h.Broadcast("ORD123", "trackingEventAdded", "ev2")

	late := &fakeConn{id: "late"}
	h.Join(late, "ORD123")
	h.Broadcast("ORD123", "trackingEventAdded", "ev3")

	assert.Len(t, early.received(), 3)
	require.Len(t, late.received(), 1)
	assert.Equal(t, "ev3", late.received()[0].Payload)
}

// TestHub_LeaveStopsDelivery verifies a connection that left a room
// receives nothing from later broadcasts.
func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := New(zap.NewNop())
	conn := &fakeConn{id: "c"}

	h.Join(conn, "ORD123")
	h.Leave("c", "ORD123")

	assert.Equal(t, 0, h.Broadcast("ORD123", "trackingUpdated", nil))
	assert.Empty(t, conn.received())
	assert.Equal(t, 0, h.RoomSize("ORD123"))
}

// TestHub_DisconnectPurgesAllRooms verifies a dropped connection is removed
// from every room it had joined.
func TestHub_DisconnectPurgesAllRooms(t *testing.T) {
	h := New(zap.NewNop())
	conn := &fakeConn{id: "multi"}

	h.Join(conn, "ORD-1")
	h.Join(conn, "ORD-2")
	require.Equal(t, 1, h.RoomSize("ORD-1"))
	require.Equal(t, 1, h.RoomSize("ORD-2"))

	h.Disconnect("multi")

	assert.Equal(t, 0, h.RoomSize("ORD-1"))
	assert.Equal(t, 0, h.RoomSize("ORD-2"))
	assert.Equal(t, 0, h.Broadcast("ORD-1", "trackingUpdated", nil))
}

// TestHub_DuplicateJoin verifies joining the same room twice yields a
// single delivery per broadcast.
func TestHub_DuplicateJoin(t *testing.T) {
	h := New(zap.NewNop())
	conn := &fakeConn{id: "dup"}

	h.Join(conn, "ORD123")
	h.Join(conn, "ORD123")

	assert.Equal(t, 1, h.RoomSize("ORD123"))
	h.Broadcast("ORD123", "trackingUpdated", nil)
	assert.Len(t, conn.received(), 1)
}

// TestHub_SendFailureIsSwallowed verifies a failing subscriber does not
// prevent delivery to the others.
func TestHub_SendFailureIsSwallowed(t *testing.T) {
	h := New(zap.NewNop())
	broken := &fakeConn{id: "broken", sendErr: errors.New("write: broken pipe")}
	healthy := &fakeConn{id: "healthy"}

	h.Join(broken, "ORD123")
	h.Join(healthy, "ORD123")

	delivered := h.Broadcast("ORD123", "trackingUpdated", nil)
	assert.Equal(t, 1, delivered)
	assert.Len(t, healthy.received(), 1)
}
