// Package realtime pushes booking events to provider staff over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

const (
	sendTimeout = 5 * time.Second
	// idleTimeout closes feeds whose client stopped pinging. It also replaces
	// the read deadline the HTTP server left on the hijacked connection.
	idleTimeout = 90 * time.Second
)

// Message is what the feed sends to the dashboard.
type Message struct {
	Type      string          `json:"type"` // "hello", "event", "pong"
	EventID   string          `json:"event_id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type inbound struct {
	Type string `json:"type"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	return websocket.JSON.Send(c.conn, msg)
}

// Hub tracks open feeds per provider. It is an events.DeliveryHandler:
// delivery is best effort and never fails the outbox entry.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{logger: logger, clients: make(map[uuid.UUID]map[*client]struct{})}
}

// ServeFeed upgrades the request and streams the provider's events until the
// client disconnects. Authorization is the caller's job.
func (h *Hub) ServeFeed(w http.ResponseWriter, r *http.Request, providerID uuid.UUID) {
	websocket.Server{
		Handler: func(conn *websocket.Conn) { h.serve(conn, providerID) },
	}.ServeHTTP(w, r)
}

func (h *Hub) serve(conn *websocket.Conn, providerID uuid.UUID) {
	c := &client{conn: conn}
	h.register(providerID, c)
	defer h.unregister(providerID, c)

	if err := c.send(Message{Type: "hello"}); err != nil {
		return
	}
	h.logger.Info("realtime: feed opened", "provider_id", providerID)

	for {
		var msg inbound
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("realtime: feed closed", "provider_id", providerID, "error", err)
			return
		}
		if msg.Type == "ping" {
			_ = c.send(Message{Type: "pong"})
		}
	}
}

func (h *Hub) register(providerID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[providerID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[providerID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(providerID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[providerID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, providerID)
		}
	}
}

// Connections reports open feeds for the provider.
func (h *Hub) Connections(providerID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[providerID])
}

// Handle broadcasts the entry to the provider's open feeds.
func (h *Hub) Handle(_ context.Context, entry events.OutboxEntry) error {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[entry.ProviderID]))
	for c := range h.clients[entry.ProviderID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg := Message{
		Type:      "event",
		EventID:   entry.ID.String(),
		EventType: entry.Type,
		Payload:   entry.Payload,
	}
	for _, c := range targets {
		if err := c.send(msg); err != nil {
			h.logger.Debug("realtime: send failed", "provider_id", entry.ProviderID, "error", err)
		}
	}
	return nil
}
