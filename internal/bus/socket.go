package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// MaxDatagramSize bounds one encoded message on a SocketTransport.
const MaxDatagramSize = 64 * 1024

const (
	socketSuffix        = ".sock"
	defaultWriteTimeout = 200 * time.Millisecond
)

// ErrMessageTooLarge is returned by Send for messages over MaxDatagramSize.
var ErrMessageTooLarge = errors.New("bus: message too large")

// SocketTransport connects processes on one device through unix datagram
// sockets. Every peer on a channel binds <dir>/<channel>/<peer>.sock; a send
// is one datagram to every other socket in that directory.
type SocketTransport struct {
	dir          string
	writeTimeout time.Duration
	logger       *slog.Logger
}

// SocketOption configures a SocketTransport.
type SocketOption func(*SocketTransport)

// WithWriteTimeout bounds how long a send waits on one slow peer.
func WithWriteTimeout(d time.Duration) SocketOption {
	return func(t *SocketTransport) {
		if d > 0 {
			t.writeTimeout = d
		}
	}
}

// WithSocketLogger sets the logger for stale socket cleanup.
func WithSocketLogger(l *slog.Logger) SocketOption {
	return func(t *SocketTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewSocketTransport creates a transport rooted at dir. Nothing is created
// on disk until Open.
func NewSocketTransport(dir string, opts ...SocketOption) *SocketTransport {
	t := &SocketTransport{
		dir:          dir,
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dir returns the root directory.
func (t *SocketTransport) Dir() string {
	return t.dir
}

// Open implements Transport.
func (t *SocketTransport) Open(channel, peerID string) (Conn, error) {
	if channel == "" || strings.ContainsAny(channel, `/\`) {
		return nil, fmt.Errorf("open channel %q: invalid channel name", channel)
	}

	chanDir := filepath.Join(t.dir, channel)
	if err := os.MkdirAll(chanDir, 0o700); err != nil {
		return nil, fmt.Errorf("open channel %q: %w", channel, err)
	}

	path := filepath.Join(chanDir, peerID+socketSuffix)
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("open channel %q: %w", channel, err)
	}

	return &socketConn{
		transport: t,
		conn:      conn,
		dir:       chanDir,
		path:      path,
	}, nil
}

type socketConn struct {
	transport *SocketTransport
	conn      *net.UnixConn
	dir       string
	path      string

	mu     sync.Mutex // serializes writes and the closed flag
	closed bool
}

func (c *socketConn) Send(data []byte) error {
	if len(data) > MaxDatagramSize {
		return fmt.Errorf("send %d bytes: %w", len(data), ErrMessageTooLarge)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	peers, err := c.peers()
	if err != nil {
		return fmt.Errorf("list peers: %w", err)
	}

	var failures []error
	sent := 0
	for _, peer := range peers {
		if err := c.sendTo(peer, data); err != nil {
			if isStale(err) {
				c.transport.logger.Debug("removing stale peer socket", "path", peer)
				_ = os.Remove(peer)
				continue
			}
			failures = append(failures, err)
			continue
		}
		sent++
	}

	if sent == 0 && len(failures) > 0 {
		return fmt.Errorf("send to %d peers: %w", len(failures), errors.Join(failures...))
	}
	return nil
}

func (c *socketConn) sendTo(peer string, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.transport.writeTimeout)); err != nil {
		return err
	}
	_, err := c.conn.WriteToUnix(data, &net.UnixAddr{Name: peer, Net: "unixgram"})
	return err
}

// peers lists every socket in the channel directory except our own.
func (c *socketConn) peers() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), socketSuffix) {
			continue
		}
		p := filepath.Join(c.dir, e.Name())
		if p == c.path {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *socketConn) Receive() ([]byte, error) {
	buf := make([]byte, MaxDatagramSize)
	n, _, err := c.conn.ReadFromUnix(buf)
	if err != nil {
		if c.isClosed() || errors.Is(err, net.ErrClosed) {
			return nil, ErrConnClosed
		}
		return nil, err
	}
	return buf[:n], nil
}

func (c *socketConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *socketConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	if rmErr := os.Remove(c.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// isStale reports whether a send failed because nobody is bound to the
// socket any more.
func isStale(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
