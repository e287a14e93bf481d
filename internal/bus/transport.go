package bus

import "errors"

// ErrConnClosed is returned by Conn methods after Close.
var ErrConnClosed = errors.New("bus: connection closed")

// Transport opens connections to named channels.
type Transport interface {
	// Open joins channel as peerID. The returned Conn receives what other
	// conns on the same channel send; it never receives its own sends.
	Open(channel, peerID string) (Conn, error)
}

// Conn is one peer's attachment to a channel.
type Conn interface {
	// Send delivers data to every other live conn on the channel. Delivery
	// is best effort: a peer that cannot take the message misses it.
	Send(data []byte) error

	// Receive blocks until a message arrives or the conn is closed, in which
	// case it returns ErrConnClosed.
	Receive() ([]byte, error)

	Close() error
}
