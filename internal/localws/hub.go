// Package localws re-broadcasts relayed notifications to local WebSocket
// consumers over the daemon's /ws endpoint, using the same {event, data}
// framing the backend channel speaks.
package localws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/model"
)

const eventNotification = "globalNotification"

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub maintains the set of connected local consumers and broadcasts each
// relayed notification to all of them. It satisfies the bridge subscriber
// interface, so wiring it to the bridge makes every upstream event visible
// on the local socket.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Notify broadcasts a relayed notification to all connected consumers.
func (h *Hub) Notify(n model.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("marshal notification", "error", err)
		return
	}
	out, err := json.Marshal(frame{Event: eventNotification, Data: data})
	if err != nil {
		h.logger.Error("marshal broadcast frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- out:
		default:
			// Slow consumer. Dropping beats blocking the fan-out.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
