package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"order-tracker/internal/core/auth"
	"order-tracker/internal/core/logger"
	"order-tracker/internal/features/realtime/domain"
	"order-tracker/internal/features/realtime/hub"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// claimsLocal is the locals key carrying verified claims into the socket.
const claimsLocal = "ws_claims"

// SubscriptionAuthorizer decides whether a principal may subscribe to an
// order's room. Implemented by the orders service.
type SubscriptionAuthorizer interface {
	// AuthorizeSubscription returns nil when claims may watch orderID.
	AuthorizeSubscription(ctx context.Context, claims *auth.Claims, orderID string) error
}

// WSHandler upgrades storefront connections to websockets and bridges them
// into the notification hub.
type WSHandler struct {
	hub          *hub.Hub
	authorizer   SubscriptionAuthorizer
	tokens       *auth.TokenManager
	pingInterval time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(h *hub.Hub, authorizer SubscriptionAuthorizer, tokens *auth.TokenManager, pingInterval, writeTimeout time.Duration) *WSHandler {
	return &WSHandler{
		hub:          h,
		authorizer:   authorizer,
		tokens:       tokens,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		logger:       logger.Named("realtime"),
	}
}

// Upgrade is the HTTP middleware guarding the websocket endpoint. Browsers
// cannot set headers on websocket dials, so the bearer token travels in the
// "token" query parameter.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.SendStatus(http.StatusUpgradeRequired)
	}

	claims, err := h.tokens.Verify(c.Query("token"))
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals(claimsLocal, claims)
	return c.Next()
}

// Handler returns the websocket endpoint handler.
func (h *WSHandler) Handler() fiber.Handler {
	return websocket.New(h.serve)
}

// serve runs one connection: a ping loop plus the read loop that processes
// room subscriptions. The hub purges the connection from every room when
// the read loop ends.
func (h *WSHandler) serve(c *websocket.Conn) {
	claims, ok := c.Locals(claimsLocal).(*auth.Claims)
	if !ok {
		c.Close()
		return
	}

	conn := newWSConn(c, h.writeTimeout)
	defer func() {
		h.hub.Disconnect(conn.ID())
		conn.close()
	}()

	h.logger.Debug("websocket connected",
		zap.String("conn_id", conn.ID()),
		zap.String("user_id", claims.UserID),
	)

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(conn, done)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}

		var frame domain.Envelope
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.Debug("discarding malformed frame", zap.String("conn_id", conn.ID()))
			continue
		}

		switch frame.Event {
		case domain.EventJoinOrderRoom:
			h.handleJoin(conn, claims, frame.Data)
		default:
			h.logger.Debug("ignoring unknown event",
				zap.String("conn_id", conn.ID()),
				zap.String("event", frame.Event),
			)
		}
	}
}

// handleJoin authorizes and registers one room subscription. Unauthorized
// joins are answered with a joinRejected frame so the client can fall back
// to polling deliberately.
func (h *WSHandler) handleJoin(conn *wsConn, claims *auth.Claims, data json.RawMessage) {
	var orderID string
	if err := json.Unmarshal(data, &orderID); err != nil || orderID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.authorizer.AuthorizeSubscription(ctx, claims, orderID); err != nil {
		h.logger.Warn("room subscription denied",
			zap.String("conn_id", conn.ID()),
			zap.String("user_id", claims.UserID),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		conn.Send(domain.EventJoinRejected, domain.JoinRejected{
			PedidoID: orderID,
			Reason:   "not authorized for this order",
		})
		return
	}

	h.hub.Join(conn, orderID)
}

// pingLoop keeps the connection alive until the read loop finishes.
func (h *WSHandler) pingLoop(conn *wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

// wsConn adapts a websocket connection to hub.Conn. A mutex serializes
// writers: the hub broadcasts and the ping loop share the socket.
type wsConn struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func newWSConn(c *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           uuid.NewString(),
		conn:         c,
		writeTimeout: writeTimeout,
	}
}

// ID implements hub.Conn.
func (w *wsConn) ID() string { return w.id }

// Send implements hub.Conn by writing one envelope frame.
func (w *wsConn) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(domain.Envelope{Event: event, Data: data})
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout))
}

func (w *wsConn) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.Close()
}
