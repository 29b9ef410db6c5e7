package ws

import (
	"context"
	"sync"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
	"github.com/tirumala-karthikeya/chat-pro/shared/observability"
)

// Hub is the registry of live websocket clients, keyed by client id.
// Registering an id that is already present replaces (and closes) the
// older connection.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	mu      sync.RWMutex
	clients map[string]*Client

	log     *logger.Logger
	metrics *observability.Metrics
}

func NewHub(log *logger.Logger, metrics *observability.Metrics) *Hub {
	if log == nil {
		log = logger.GetGlobal()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		clients:    make(map[string]*Client),
		log:        log,
		metrics:    metrics,
	}
}

// Run serves registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			old := h.clients[c.ID]
			h.clients[c.ID] = c
			h.mu.Unlock()
			if old != nil && old != c {
				h.log.Info("replacing websocket client", "client_id", c.ID)
				old.Close()
			}
			h.metrics.WSConnections(ctx, 1)
			h.log.Info("websocket client registered", "client_id", c.ID)

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c.ID] == c {
				delete(h.clients, c.ID)
			}
			h.mu.Unlock()
			c.Close()
			h.metrics.WSConnections(ctx, -1)
			h.log.Info("websocket client unregistered", "client_id", c.ID)

		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				c.Close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register adds c. It returns false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// Unregister removes c if it is still the client registered under its id.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
