// Package feed streams reconciler events to websocket clients, for a
// presentation layer running next to the process.
package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/oddsync/internal/reconcile"
)

const (
	defaultBufferSize = 64
	writeWait         = 5 * time.Second
)

// Frame is the JSON form of one event on the wire.
type Frame struct {
	Kind reconcile.EventKind `json:"kind"`
	Data reconcile.Event     `json:"data"`
}

// EventSource is where the hub gets events. Implemented by
// *reconcile.Reconciler.
type EventSource interface {
	On(kind reconcile.EventKind, fn reconcile.Listener) reconcile.Subscription
}

// Client is one connected consumer.
type Client struct {
	frames chan []byte
}

// Frames returns the channel of encoded frames for this client.
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

// Hub fans events out to clients. A client whose buffer is full misses
// frames; it is never waited on.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	bufferSize int
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets the per-client frame buffer.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a hub with no clients.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		bufferSize: defaultBufferSize,
		logger:     slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddClient registers a new client.
func (h *Hub) AddClient() *Client {
	c := &Client{frames: make(chan []byte, h.bufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// RemoveClient unregisters c and closes its frame channel. Removing twice
// is a no-op.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.frames)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast encodes ev once and queues it for every client.
func (h *Hub) Broadcast(ev reconcile.Event) {
	data, err := json.Marshal(Frame{Kind: ev.Kind(), Data: ev})
	if err != nil {
		h.logger.Warn("encode feed frame", "kind", ev.Kind(), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.frames <- data:
		default:
			h.logger.Debug("feed client slow, frame dropped", "kind", ev.Kind())
		}
	}
}

// Attach subscribes the hub to every event kind of src.
func (h *Hub) Attach(src EventSource) []reconcile.Subscription {
	subs := make([]reconcile.Subscription, 0, len(reconcile.Kinds))
	for _, k := range reconcile.Kinds {
		subs = append(subs, src.On(k, h.Broadcast))
	}
	return subs
}

// Handler upgrades requests to websocket connections and streams frames
// until the client goes away.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("feed upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()

		c := h.AddClient()
		defer h.RemoveClient(c)
		h.logger.Debug("feed client connected", "remote", r.RemoteAddr)

		// The feed is one-way; reading only notices the client leaving.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case data, ok := <-c.frames:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					h.logger.Debug("feed write failed", "remote", r.RemoteAddr, "error", err)
					return
				}
			case <-gone:
				return
			}
		}
	})
}
