package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSEvent is the envelope for all WebSocket messages. Worker names the
// bot seat the event concerns; it is empty for connection-level messages.
type WSEvent struct {
	Type   string `json:"type"`
	Worker string `json:"worker,omitempty"`
	Data   any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client. A
// worker name of "*" subscribes to every seat.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Worker string `json:"worker"`
}

// workerAll is the wildcard channel receiving every worker's events.
const workerAll = "*"

// WSConn wraps a WebSocket connection with its admin and subscriptions.
type WSConn struct {
	conn    *websocket.Conn
	adminID string
	send    chan []byte
}

// Hub manages WebSocket connections and per-worker subscriptions.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	workers     map[string]map[*WSConn]bool // worker name -> subscribers
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		workers:     make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
	for worker, conns := range h.workers {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.workers, worker)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a worker channel.
func (h *Hub) Subscribe(c *WSConn, worker string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.workers[worker] == nil {
		h.workers[worker] = make(map[*WSConn]bool)
	}
	h.workers[worker][c] = true
}

// Unsubscribe removes a connection from a worker channel.
func (h *Hub) Unsubscribe(c *WSConn, worker string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.workers[worker]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.workers, worker)
		}
	}
}

// BroadcastToWorker sends an event to every connection subscribed to the
// worker, including wildcard subscribers.
func (h *Hub) BroadcastToWorker(worker string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("worker", worker).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := make(map[*WSConn]bool)
	for _, channel := range []string{worker, workerAll} {
		for c := range h.workers[channel] {
			if sent[c] {
				continue
			}
			sent[c] = true
			select {
			case c.send <- data:
			default:
				log.Warn().Str("adminId", c.adminID).Str("worker", worker).Msg("Dropping WebSocket message, buffer full")
			}
		}
	}
}

// BroadcastToAll sends an event to every connection regardless of
// subscriptions.
func (h *Hub) BroadcastToAll(event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.connections {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WorkerSubscriberCount returns the number of connections subscribed to a
// worker channel.
func (h *Hub) WorkerSubscriberCount(worker string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.workers[worker])
}
