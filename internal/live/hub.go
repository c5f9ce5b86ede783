// Package live pushes committed game changes to connected clients.
package live

import (
	"context"
	"encoding/json"
	"log/slog"

	"greenledger/internal/game"
)

// Hub fans change messages out to websocket clients. It implements
// game.Notifier; Publish never blocks the caller.
type Hub struct {
	log        *slog.Logger
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	count      chan chan int
	done       chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:        logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Debug("live client connected", "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				close(c.send)
				delete(h.clients, c)
				h.log.Debug("live client disconnected", "clients", len(h.clients))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer; it reconnects and refetches state.
					close(c.send)
					delete(h.clients, c)
				}
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

func (h *Hub) Publish(_ context.Context, c game.Change) {
	msg, err := json.Marshal(c)
	if err != nil {
		h.log.Error("encode change", "err", err)
		return
	}
	h.deliver(msg)
}

func (h *Hub) deliver(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("live broadcast buffer full, dropping change")
	}
}

// Clients reports the number of connected clients. It requires Run.
func (h *Hub) Clients(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.done:
		return 0
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}
