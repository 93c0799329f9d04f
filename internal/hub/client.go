package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection roles. Every connection starts as an app client; a
// hardware controller promotes itself with an IDENTIFY message.
const (
	RoleApp      = "app"
	RoleHardware = "hardware"
)

const writeWait = 10 * time.Second

// Client is one duplex connection attached to the hub. The conn may be
// nil in tests; the send channel still buffers outbound frames so
// delivery can be asserted without a network.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	// Buffered outbound queue, drained by writePump. Closed exactly
	// once, by the hub on unregister.
	send chan []byte

	// Ping requests from the liveness probe. All socket writes happen
	// on the writePump goroutine.
	ping chan struct{}

	mu    sync.Mutex
	role  string
	alive bool
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, h.cfg.SendBuffer),
		ping:  make(chan struct{}, 1),
		role:  RoleApp,
		alive: true,
	}
}

// ID returns the connection's unique identifier.
func (c *Client) ID() string { return c.id }

// Role returns the connection's current role.
func (c *Client) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// PromoteHardware marks the connection as the hardware controller.
// Returns false if it already held that role.
func (c *Client) PromoteHardware() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == RoleHardware {
		return false
	}
	c.role = RoleHardware
	return true
}

func (c *Client) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// probeAlive reports whether the connection showed life since the last
// probe, and resets the flag so the next probe starts a fresh window.
func (c *Client) probeAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

// trySend queues a frame without blocking. A full buffer drops the
// frame for this connection only; a closed channel (racing unregister)
// is absorbed by the recover.
func (c *Client) trySend(data []byte) {
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("send buffer full, dropping frame", "client_id", c.id, "role", c.Role())
	}
}

// requestPing asks the writePump to emit a ping frame. Coalesces if one
// is already pending.
func (c *Client) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// readPump consumes inbound frames until the connection dies, then
// detaches the client from the hub. Every inbound frame, pong included,
// counts as proof of life.
func (c *Client) readPump() {
	defer c.hub.drop(c)

	c.conn.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("connection read failed", "client_id", c.id, "error", err)
			}
			return
		}
		c.markAlive()
		c.hub.handler.HandleMessage(c, data)
	}
}

// writePump owns all writes to the socket. Exits when the send channel
// is closed by unregister.
func (c *Client) writePump() {
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ping:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
