// Package events pushes comparison lifecycle notifications to the owning
// user's open WebSocket connections.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is a real-time notification about one comparison.
type Event struct {
	Type         string `json:"type"`
	ComparisonID string `json:"comparison_id"`
	Status       string `json:"status"`
	Summary      string `json:"summary,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// Hub maintains active WebSocket clients keyed by user and delivers events
// only to that user's connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub under its user ID.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
}

// Publish delivers the event to every connection the user has open.
// Slow clients are skipped rather than blocking the publisher.
func (h *Hub) Publish(userID int64, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping event for slow client", "user_id", userID)
		}
	}
}

// ClientCount returns the number of open connections for the user.
func (h *Hub) ClientCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
