package hub

import (
	"sync"

	"order-tracker/internal/features/realtime/domain"

	"go.uber.org/zap"
)

// Conn is one subscriber connection attached to the hub. Implementations
// must tolerate concurrent Send calls.
type Conn interface {
	// ID uniquely identifies the connection for the hub's routing table.
	ID() string
	// Send delivers one event frame to the peer.
	Send(event string, payload any) error
}

// Hub routes order-scoped events to the connections subscribed to each
// order's room. Membership is in-memory only; it is rebuilt from scratch
// when the process restarts and clients rejoin.
//
// The hub is constructed once at startup and injected into the websocket
// handler and the outbox dispatcher.
type Hub struct {
	mu sync.RWMutex
	// rooms maps order id to the set of subscribed connections.
	rooms map[string]map[string]Conn
	// membership maps connection id to the rooms it joined, so a dropped
	// connection can be purged from every room it was in.
	membership map[string]map[string]struct{}
	logger     *zap.Logger
}

// New creates an empty Hub.
func New(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[string]Conn),
		membership: make(map[string]map[string]struct{}),
		logger:     logger,
	}
}

// Join adds conn to the room for orderID. Joining twice is a no-op. A
// connection may be in any number of rooms at once.
func (h *Hub) Join(conn Conn, orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[orderID]
	if !ok {
		room = make(map[string]Conn)
		h.rooms[orderID] = room
	}
	room[conn.ID()] = conn

	joined, ok := h.membership[conn.ID()]
	if !ok {
		joined = make(map[string]struct{})
		h.membership[conn.ID()] = joined
	}
	joined[orderID] = struct{}{}

	h.logger.Debug("connection joined room",
		zap.String("conn_id", conn.ID()),
		zap.String("room", domain.RoomName(orderID)),
	)
}

// Leave removes the connection from a single room.
func (h *Hub) Leave(connID, orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(connID, orderID)
}

// Disconnect removes the connection from every room it joined.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for orderID := range h.membership[connID] {
		h.removeLocked(connID, orderID)
	}
	delete(h.membership, connID)

	h.logger.Debug("connection detached", zap.String("conn_id", connID))
}

// removeLocked deletes one membership edge. Callers hold h.mu.
func (h *Hub) removeLocked(connID, orderID string) {
	if room, ok := h.rooms[orderID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, orderID)
		}
	}
	if joined, ok := h.membership[connID]; ok {
		delete(joined, orderID)
		if len(joined) == 0 {
			delete(h.membership, connID)
		}
	}
}

// Broadcast delivers payload to every connection currently in the order's
// room and returns how many sends succeeded. Delivery is best-effort and
// at-most-once per connection: send failures are logged and dropped, and
// an empty room swallows the event silently.
func (h *Hub) Broadcast(orderID, event string, payload any) int {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[orderID]))
	for _, c := range h.rooms[orderID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if err := c.Send(event, payload); err != nil {
			h.logger.Warn("failed to deliver event",
				zap.String("conn_id", c.ID()),
				zap.String("room", domain.RoomName(orderID)),
				zap.String("event", event),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// RoomSize returns the number of connections subscribed to an order.
func (h *Hub) RoomSize(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orderID])
}
