package bus

import (
	"sync"
)

const defaultInboxSize = 256

// MemoryHub is an in-process Transport. Every conn has a bounded inbox;
// a message for a full inbox is dropped.
type MemoryHub struct {
	mu          sync.Mutex
	channels    map[string]map[string]*memoryConn
	inboxSize   int
	unavailable error
}

// MemoryOption configures a MemoryHub.
type MemoryOption func(*MemoryHub)

// WithInboxSize sets the per-conn buffer size.
func WithInboxSize(n int) MemoryOption {
	return func(h *MemoryHub) {
		if n > 0 {
			h.inboxSize = n
		}
	}
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub(opts ...MemoryOption) *MemoryHub {
	h := &MemoryHub{
		channels:  make(map[string]map[string]*memoryConn),
		inboxSize: defaultInboxSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetUnavailable makes Open fail with err until called again with nil.
func (h *MemoryHub) SetUnavailable(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unavailable = err
}

// Peers returns the number of open conns on channel.
func (h *MemoryHub) Peers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[channel])
}

// Open implements Transport.
func (h *MemoryHub) Open(channel, peerID string) (Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unavailable != nil {
		return nil, h.unavailable
	}

	peers, ok := h.channels[channel]
	if !ok {
		peers = make(map[string]*memoryConn)
		h.channels[channel] = peers
	}

	c := &memoryConn{
		hub:     h,
		channel: channel,
		peerID:  peerID,
		inbox:   make(chan []byte, h.inboxSize),
		done:    make(chan struct{}),
	}
	peers[peerID] = c
	return c, nil
}

type memoryConn struct {
	hub     *MemoryHub
	channel string
	peerID  string
	inbox   chan []byte
	done    chan struct{}
	once    sync.Once
}

func (c *memoryConn) Send(data []byte) error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()

	peers := c.hub.channels[c.channel]
	if peers[c.peerID] != c {
		return ErrConnClosed
	}

	for id, peer := range peers {
		if id == c.peerID {
			continue
		}
		msg := append([]byte(nil), data...)
		select {
		case peer.inbox <- msg:
		default:
			// Full inbox: at-most-once, the peer misses it.
		}
	}
	return nil
}

func (c *memoryConn) Receive() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.done:
		return nil, ErrConnClosed
	}
}

func (c *memoryConn) Close() error {
	c.once.Do(func() {
		c.hub.mu.Lock()
		if peers := c.hub.channels[c.channel]; peers[c.peerID] == c {
			delete(peers, c.peerID)
			if len(peers) == 0 {
				delete(c.hub.channels, c.channel)
			}
		}
		c.hub.mu.Unlock()
		close(c.done)
	})
	return nil
}
