package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a lifecycle notification delivered to one organization's clients.
type Message struct {
	Type           string         `json:"type"`
	Entity         string         `json:"entity"`
	Action         string         `json:"action"`
	ID             string         `json:"id,omitempty"`
	OrganizationID string         `json:"organization_id"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(organizationID, entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:           fmt.Sprintf("%s_%s", entity, action),
		Entity:         entity,
		Action:         action,
		ID:             id,
		OrganizationID: organizationID,
		Extra:          extra,
	}
}

// Hub maintains the set of active WebSocket clients and fans messages out
// to the clients of the message's organization.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

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

// Broadcast sends msg to every client connected for msg.OrganizationID.
func (h *Hub) Broadcast(msg Message) {
	if msg.OrganizationID == "" {
		h.logger.Warn("dropping broadcast without organization", "type", msg.Type)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.organizationID != msg.OrganizationID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client buffer full, message dropped", "type", msg.Type)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
