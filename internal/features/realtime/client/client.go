package client

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"order-tracker/internal/core/logger"
	"order-tracker/internal/features/realtime/domain"

	"github.com/fasthttp/websocket"
	"go.uber.org/zap"
)

// State is the connection manager's lifecycle state.
type State int

const (
	// StateConnecting means a dial attempt is in flight.
	StateConnecting State = iota
	// StateConnected means the handshake succeeded and frames flow.
	StateConnected
	// StateDisconnected means the transport dropped; a retry is pending.
	StateDisconnected
	// StateUnavailable is terminal: the retry budget is exhausted and no
	// further attempt will ever be scheduled. Only a new Client recovers.
	StateUnavailable
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// wireConn is the minimal websocket surface the client needs. The real
// implementation is a fasthttp/websocket connection.
type wireConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// DialFunc opens one websocket connection.
type DialFunc func(ctx context.Context) (wireConn, error)

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// Token is the bearer token passed as the "token" query parameter.
	Token string
	// MaxAttempts is the consecutive-failure budget before the client
	// permanently gives up. Defaults to 3.
	MaxAttempts int
	// Backoff is the fixed delay between attempts. Defaults to 1s.
	Backoff time.Duration
	// DialTimeout bounds a single handshake. Defaults to 5s.
	DialTimeout time.Duration

	// OnTrackingUpdated receives full tracking-state replacements.
	OnTrackingUpdated func(domain.TrackingUpdated)
	// OnTrackingEventAdded receives history appends (full-history payload).
	OnTrackingEventAdded func(domain.TrackingEventAdded)
	// OnOrderStatus fires when a trackingUpdated frame carries a new order
	// status. It never fires for trackingEventAdded frames.
	OnOrderStatus func(orderID, estado string)
	// OnUnavailable fires exactly once when the client enters
	// StateUnavailable, so callers can show a one-time degradation notice.
	OnUnavailable func()

	// Dial overrides the websocket dialer. Used by tests.
	Dial DialFunc
}

// Client maintains one resilient connection to the notification hub and
// degrades to a terminal unavailable state after repeated failures, leaving
// its owner on plain HTTP polling.
type Client struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	failures int
	conn     wireConn
	joined   map[string]struct{}

	notifyUnavailable sync.Once
	done              chan struct{}
	closeOnce         sync.Once
	wg                sync.WaitGroup

	// lifetime is cancelled by Close so an in-flight dial aborts
	// immediately instead of running out its handshake timeout.
	lifetime context.Context
	cancel   context.CancelFunc
}

// New creates a Client. Call Start to begin connecting.
func New(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:     opts,
		logger:   logger.Named("realtime-client"),
		state:    StateConnecting,
		joined:   make(map[string]struct{}),
		done:     make(chan struct{}),
		lifetime: lifetime,
		cancel:   cancel,
	}
	if c.opts.Dial == nil {
		c.opts.Dial = c.dialWebsocket
	}
	return c
}

// Start launches the connection loop in the background.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.run()
}

// Close tears the client down. It never transitions a live client to
// StateUnavailable; it simply stops the loop.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether frames are currently flowing.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Available reports whether the realtime channel may still deliver events.
// It turns false permanently once the retry budget is spent.
func (c *Client) Available() bool {
	return c.State() != StateUnavailable
}

// JoinOrderRoom subscribes to an order's room. It is a silent no-op unless
// the client is connected and available, so callers never need to branch
// on connectivity. Joined rooms are re-subscribed after a reconnect.
func (c *Client) JoinOrderRoom(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.conn == nil {
		return
	}
	if err := c.writeJoinLocked(orderID); err != nil {
		c.logger.Debug("failed to send join", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	c.joined[orderID] = struct{}{}
}

// run is the connection loop. It dials, pumps frames until the transport
// drops, and retries with a fixed backoff. MaxAttempts consecutive dial
// failures end the loop forever.
func (c *Client) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.setState(StateConnecting)

		ctx, cancel := context.WithTimeout(c.lifetime, c.opts.DialTimeout)
		conn, err := c.opts.Dial(ctx)
		cancel()

		if err != nil {
			if c.recordFailure(err) {
				return
			}
			select {
			case <-c.done:
				return
			case <-time.After(c.opts.Backoff):
			}
			continue
		}

		c.attach(conn)
		c.readLoop(conn)
		c.detach(conn)

		select {
		case <-c.done:
			return
		case <-time.After(c.opts.Backoff):
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// recordFailure counts one failed dial and reports whether the client just
// became permanently unavailable.
func (c *Client) recordFailure(err error) bool {
	c.mu.Lock()
	c.failures++
	failures := c.failures
	exhausted := failures >= c.opts.MaxAttempts
	if exhausted {
		c.state = StateUnavailable
	} else {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	c.logger.Debug("connection attempt failed",
		zap.Int("attempt", failures),
		zap.Int("budget", c.opts.MaxAttempts),
		zap.Error(err),
	)

	if exhausted {
		c.logger.Warn("realtime channel permanently unavailable, falling back to polling")
		if c.opts.OnUnavailable != nil {
			c.notifyUnavailable.Do(c.opts.OnUnavailable)
		}
		return true
	}
	return false
}

// attach installs a fresh connection, resets the failure counter, and
// re-subscribes previously joined rooms.
func (c *Client) attach(conn wireConn) {
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.failures = 0
	for orderID := range c.joined {
		if err := c.writeJoinLocked(orderID); err != nil {
			c.logger.Debug("failed to rejoin room", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	c.mu.Unlock()
}

// detach clears the dropped connection.
func (c *Client) detach(conn wireConn) {
	conn.Close()
	c.mu.Lock()
	c.conn = nil
	if c.state == StateConnected {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
}

// readLoop pumps frames until the transport errors.
func (c *Client) readLoop(conn wireConn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(raw)
	}
}

// dispatch decodes one frame and fires the matching callback.
func (c *Client) dispatch(raw []byte) {
	var frame domain.Envelope
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.logger.Debug("discarding malformed frame", zap.Error(err))
		return
	}

	switch frame.Event {
	case domain.EventTrackingUpdated:
		var payload domain.TrackingUpdated
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return
		}
		if c.opts.OnTrackingUpdated != nil {
			c.opts.OnTrackingUpdated(payload)
		}
		if payload.EstadoPedido != "" && c.opts.OnOrderStatus != nil {
			c.opts.OnOrderStatus(payload.PedidoID, payload.EstadoPedido)
		}

	case domain.EventTrackingEventAdded:
		var payload domain.TrackingEventAdded
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return
		}
		if c.opts.OnTrackingEventAdded != nil {
			c.opts.OnTrackingEventAdded(payload)
		}

	case domain.EventJoinRejected:
		var payload domain.JoinRejected
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return
		}
		c.mu.Lock()
		delete(c.joined, payload.PedidoID)
		c.mu.Unlock()
		c.logger.Warn("room subscription rejected",
			zap.String("order_id", payload.PedidoID),
			zap.String("reason", payload.Reason),
		)
	}
}

// writeJoinLocked sends one join frame. Callers hold c.mu.
func (c *Client) writeJoinLocked(orderID string) error {
	data, err := json.Marshal(orderID)
	if err != nil {
		return err
	}
	return c.conn.WriteJSON(domain.Envelope{Event: domain.EventJoinOrderRoom, Data: data})
}

// dialWebsocket is the production DialFunc.
func (c *Client) dialWebsocket(ctx context.Context) (wireConn, error) {
	endpoint := c.opts.URL
	if c.opts.Token != "" {
		endpoint += "?token=" + url.QueryEscape(c.opts.Token)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
