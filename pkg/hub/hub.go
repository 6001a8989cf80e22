package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-kai/pkg/protocol"
)

// ErrNoClient is returned when a targeted send names an unknown id.
var ErrNoClient = errors.New("hub: no such client")

// ErrSlowClient is returned when a client's send buffer is full.
var ErrSlowClient = errors.New("hub: client send buffer full")

// Hub maintains the set of active clients keyed by connection id.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	// Inbound messages to broadcast
	broadcast chan Message
}

// New creates a new Hub
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:    logger.With("component", "hub"),
		clients:   make(map[string]*Client),
		broadcast: make(chan Message, 256),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// Broadcasts are only delivered while Run is active.
// All remaining clients are closed on exit.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				c.closeSend()
			}
			h.mu.Unlock()
			return

		case message := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for _, client := range h.clients {
				if !client.enqueue(message) {
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				h.logger.Warn("dropped slow client", "id", client.id)
				h.remove(client)
			}
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	if old, ok := h.clients[c.id]; ok {
		old.closeSend()
	}
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", "id", c.id, "clients", count)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	cur, ok := h.clients[c.id]
	if ok && cur == c {
		delete(h.clients, c.id)
	}
	c.closeSend()
	count := len(h.clients)
	h.mu.Unlock()
	if ok && cur == c {
		h.logger.Info("client disconnected", "id", c.id, "clients", count)
	}
}

// Send queues msg for the client with the given id.
func (h *Hub) Send(id string, msg Message) error {
	h.mu.RLock()
	client, ok := h.clients[id]
	if !ok {
		h.mu.RUnlock()
		return ErrNoClient
	}
	queued := client.enqueue(msg)
	h.mu.RUnlock()
	if !queued {
		return ErrSlowClient
	}
	return nil
}

// SendEvent encodes and queues a protocol message for one client.
func (h *Hub) SendEvent(id string, msg *protocol.Message) error {
	m, err := Encode(msg)
	if err != nil {
		return err
	}
	return h.Send(id, m)
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastEvent encodes and broadcasts a protocol message.
func (h *Hub) BroadcastEvent(msg *protocol.Message) error {
	m, err := Encode(msg)
	if err != nil {
		return err
	}
	h.Broadcast(m)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
