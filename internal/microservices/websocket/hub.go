package websocket

import (
	"log/slog"
	"sync"
)

// Hub tracks every live WebSocket client.
// each connection runs its own goroutines; the hub only guards the registry.
type Hub struct {
	clients map[string]*Client // key: client ID
	mu      sync.RWMutex
	logger  *slog.Logger
}

// constructor for Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  slog.Default(),
	}
}

// Register adds a client, replacing nothing if the ID is already present
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.clients[c.ID]; exists {
		h.logger.Warn("client_already_registered", "client_id", c.ID)
		return false
	}
	h.clients[c.ID] = c
	h.logger.Info("client_registered", "client_id", c.ID, "clients", len(h.clients))
	return true
}

// Unregister removes a client if present
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.ID] != c {
		return
	}
	delete(h.clients, c.ID)
	h.logger.Info("client_unregistered", "client_id", c.ID, "clients", len(h.clients))
}

// Count returns the number of live clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every client and resets the registry
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for id, c := range clients {
		if err := c.Close(); err != nil {
			h.logger.Warn("client_close_failed", "client_id", id, "error", err)
			continue
		}
		h.logger.Info("client_connection_closed", "client_id", id)
	}
}
