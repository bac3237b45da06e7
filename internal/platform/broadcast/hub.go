// Package broadcast fans queue snapshots out to websocket subscribers
// (lobby displays, kiosks, staff dashboards). It follows a hub-and-spoke
// pattern: each client has a buffered send channel and a slow or dead
// client is dropped rather than allowed to block a mutation.
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PingInterval is how often the write pump sends a keepalive frame.
const PingInterval = 20 * time.Second

// Client represents a single websocket subscriber.
type Client struct {
	ID   string
	Send chan []byte
	conn Conn
}

// Conn abstracts a websocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// SnapshotFunc produces the current queue snapshot. It is called after
// every mutation and once per new connection; it must not be invoked
// while the caller holds the queue lock.
type SnapshotFunc func() interface{}

// Hub tracks connected clients and pushes snapshots to them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	snapshot SnapshotFunc
	logger   zerolog.Logger
}

func NewHub(snapshot SnapshotFunc, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		snapshot: snapshot,
		logger:   logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
}

// PublishQueueUpdate takes a fresh snapshot and sends it to every
// connected client. Clients with a full send buffer are skipped.
func (h *Hub) PublishQueueUpdate() {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	data, err := json.Marshal(h.snapshot())
	if err != nil {
		h.logger.Error().Err(err).Msg("broadcast: marshal snapshot failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
