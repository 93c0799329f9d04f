package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/switchyard-hub/switchyard/internal/infrastructure/config"
)

// Logger is the narrow logging surface the hub needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handler receives connection lifecycle events and inbound frames.
type Handler interface {
	HandleConnect(c *Client)
	HandleMessage(c *Client, data []byte)
	HandleDisconnect(c *Client)
}

// Hub owns the connection registry and fan-out. It knows nothing about
// message semantics; those live in the Handler.
type Hub struct {
	cfg     config.HubConfig
	logger  Logger
	handler Handler

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty registry. SetHandler must be called before
// the first Attach.
func NewHub(cfg config.HubConfig, logger Logger) *Hub {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// SetHandler wires the message handler. Separate from the constructor
// because the handler needs the hub for fan-out.
func (h *Hub) SetHandler(handler Handler) { h.handler = handler }

// Attach registers a new connection, announces it to the handler and
// starts its pumps. A nil conn skips the pumps, leaving the send
// channel readable by the caller.
func (h *Hub) Attach(conn *websocket.Conn) *Client {
	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info("client connected", "client_id", c.id, "total", h.ClientCount())
	h.handler.HandleConnect(c)

	if conn != nil {
		go c.writePump()
		go c.readPump()
	}
	return c
}

// drop detaches a client. Safe to call more than once; only the first
// call closes the send channel and notifies the handler.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c.id]
	if existed {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()

	if !existed {
		return
	}
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck
	}
	h.logger.Info("client disconnected", "client_id", c.id, "role", c.Role(), "total", h.ClientCount())
	h.handler.HandleDisconnect(c)
}

// Drop forcibly detaches a client, for callers outside the pumps.
func (h *Hub) Drop(c *Client) { h.drop(c) }

// Broadcast queues a frame on every connection except excludeID.
// Pass an empty excludeID to reach everyone.
func (h *Hub) Broadcast(data []byte, excludeID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if id == excludeID {
			continue
		}
		c.trySend(data)
	}
}

// ClientCount returns the number of attached connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HardwareClient returns the connection currently holding the hardware
// role, or nil.
func (h *Hub) HardwareClient() *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Role() == RoleHardware {
			return c
		}
	}
	return nil
}

// Run drives the dead-peer probe until ctx is cancelled, then closes
// every connection. A client that showed no life across a full probe
// interval is dropped; everyone else is pinged and given one more
// interval to respond.
func (h *Hub) Run(ctx context.Context) {
	interval := time.Duration(h.cfg.ProbeInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.probe()
		}
	}
}

func (h *Hub) probe() {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if !c.probeAlive() {
			h.logger.Warn("client unresponsive, closing", "client_id", c.id, "role", c.Role())
			h.drop(c)
			continue
		}
		c.requestPing()
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		h.drop(c)
	}
	h.logger.Info("all clients closed")
}
