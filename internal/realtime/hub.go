// Package realtime pushes queue events to connected clients over WebSocket.
// The hub is a notify.Sink: the outbox worker hands it rendered messages and
// it forwards each one to every open connection of the recipient.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meddesk/consultq/internal/notify"
)

// Client is one open WebSocket connection.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte
}

// Hub tracks connected clients by user id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.UserID] = set
	}
	set[client] = struct{}{}
	recordConnections(h.countLocked())
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
	close(client.Send)
	recordConnections(h.countLocked())
}

// Deliver implements notify.Sink. A recipient with no open connection is a
// success: the event was offered, realtime is best effort on top of the
// at-least-once outbox.
func (h *Hub) Deliver(_ context.Context, msg notify.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return notify.NewNonRetryableError(fmt.Errorf("marshal event: %w", err))
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[msg.RecipientID] {
		select {
		case client.Send <- payload:
		default:
			// Slow consumer; drop rather than block the worker.
			slog.Warn("dropping realtime message", "client_id", client.ID, "user_id", client.UserID)
		}
	}
	return nil
}

func (h *Hub) countLocked() int {
	total := 0
	for _, set := range h.clients {
		total += len(set)
	}
	return total
}
