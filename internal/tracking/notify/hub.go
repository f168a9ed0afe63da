package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// broadcast is one encoded notification with the scope used for filtering.
type broadcast struct {
	scope uuid.UUID
	data  []byte
}

// Hub relays notifications to connected websocket clients. Clients that
// cannot keep up are disconnected.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	done       chan struct{}
	logger     *slog.Logger

	// mu guards clients for readers outside the Run loop.
	mu sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 64),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Name() string { return "websocket" }

// Run owns the client set until ctx is done, then closes every client.
// It must be called at most once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("websocket client connected", "client_id", c.id, "scope", c.scopeLabel())

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Info("websocket client disconnected", "client_id", c.id)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg.scope) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("websocket client too slow, dropped", "client_id", c.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Deliver queues n for every interested client.
func (h *Hub) Deliver(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("websocket: encode %s: %w", n.Event, err)
	}
	select {
	case h.broadcast <- broadcast{scope: n.ScopeID, data: data}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clients reports connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
