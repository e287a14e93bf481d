package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/roach88/oddsync/internal/queue"
	"github.com/roach88/oddsync/internal/record"
)

const (
	// DefaultSyncLimit is how many recent records answer a SyncRequest.
	DefaultSyncLimit = 100

	// DefaultProbeWindow is how long CheckOtherTabs waits for a Pong.
	DefaultProbeWindow = 1000 * time.Millisecond
)

var (
	// ErrNotConnected is returned by Send when the bus has no transport and
	// a reconnect attempt failed.
	ErrNotConnected = errors.New("bus: not connected")

	// ErrClosed is returned by Send after Close and before the next Connect.
	ErrClosed = errors.New("bus: closed")
)

// RecordSink receives records that arrive from peers.
type RecordSink interface {
	ReceiveRemote(r record.Record) error
	ReceiveRemoteBatch(rs []record.Record) error
	ReceiveSyncResponse(rs []record.Record) int
}

// HistorySource answers sync requests.
type HistorySource interface {
	Recent(ctx context.Context, n int) ([]record.Record, error)
}

// Handler is a subscriber callback.
type Handler func(Message)

// Subscription identifies one Subscribe registration.
type Subscription struct {
	typ MessageType
	id  uint64
}

type subscriber struct {
	id uint64
	fn Handler
}

// Bus is one peer on a named channel.
type Bus struct {
	transport   Transport
	channel     string
	peerID      string
	logger      *slog.Logger
	clock       record.Clock
	syncLimit   int
	probeWindow time.Duration
	maxMessage  int

	mu     sync.Mutex
	conn   Conn
	inbox  *queue.Queue[Message]
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup

	subMu  sync.RWMutex
	subs   map[MessageType][]subscriber
	nextID uint64
	sink   RecordSink
	source HistorySource
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithSyncLimit sets how many records answer a SyncRequest.
func WithSyncLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.syncLimit = n
		}
	}
}

// WithProbeWindow sets the CheckOtherTabs deadline.
func WithProbeWindow(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.probeWindow = d
		}
	}
}

// WithMaxMessageSize sets the largest encoded message the bus sends
// (default MaxDatagramSize). Record batches above it are split.
func WithMaxMessageSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxMessage = n
		}
	}
}

// WithClock sets the clock used for message timestamps.
func WithClock(c record.Clock) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithPeerID overrides the generated ULID peer id.
func WithPeerID(id string) Option {
	return func(b *Bus) {
		if id != "" {
			b.peerID = id
		}
	}
}

// New creates a disconnected bus for channel.
func New(transport Transport, channel string, opts ...Option) *Bus {
	b := &Bus{
		transport:   transport,
		channel:     channel,
		peerID:      ulid.Make().String(),
		logger:      slog.Default(),
		clock:       record.SystemClock{},
		syncLimit:   DefaultSyncLimit,
		probeWindow: DefaultProbeWindow,
		maxMessage:  MaxDatagramSize,
		subs:        make(map[MessageType][]subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("channel", channel, "peer", b.peerID)
	return b
}

// PeerID returns the id this bus sends as.
func (b *Bus) PeerID() string { return b.peerID }

// Channel returns the channel name.
func (b *Bus) Channel() string { return b.channel }

// Connected reports whether the bus currently holds a transport conn.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Attach wires the merge entry points and the sync history source. Either
// may be nil.
func (b *Bus) Attach(sink RecordSink, source HistorySource) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.sink = sink
	b.source = source
}

// Connect opens the transport and starts receiving. It is a no-op when
// already connected and reopens a closed bus. On success a Ping is
// published; on failure the bus stays disconnected.
func (b *Bus) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.conn != nil {
		b.mu.Unlock()
		return nil
	}

	conn, err := b.transport.Open(b.channel, b.peerID)
	if err != nil {
		b.mu.Unlock()
		b.logger.Warn("bus connect failed", "error", err)
		return fmt.Errorf("connect %s: %w", b.channel, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	inbox := queue.New[Message]()
	b.conn = conn
	b.inbox = inbox
	b.cancel = cancel
	b.closed = false

	b.wg.Add(2)
	go b.receiveLoop(conn, inbox)
	go b.dispatchLoop(runCtx, inbox)
	b.mu.Unlock()

	b.logger.Debug("bus connected")
	b.Publish(Ping{Timestamp: b.now()})
	return nil
}

// Close releases the transport and stops the bus goroutines. Publish fails
// until the next Connect. Close must not be called from a subscriber.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	conn := b.detachLocked()
	b.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	b.wg.Wait()
	return err
}

// detachLocked drops the current conn and stops its dispatcher. Caller
// holds b.mu and closes the returned conn.
func (b *Bus) detachLocked() Conn {
	conn := b.conn
	if conn == nil {
		return nil
	}
	b.conn = nil
	b.cancel()
	b.inbox.Close()
	return conn
}

// Send encodes p and hands it to the transport. A disconnected bus that
// was not closed makes one reconnect attempt first.
func (b *Bus) Send(p Payload) error {
	conn, err := b.activeConn()
	if err != nil {
		return err
	}

	data, err := encode(b.peerID, p)
	if err != nil {
		return err
	}

	if err := conn.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", p.Type(), err)
	}
	return nil
}

// Publish is Send that logs instead of returning the error.
func (b *Bus) Publish(p Payload) bool {
	if err := b.Send(p); err != nil {
		b.logger.Debug("publish failed", "type", p.Type(), "error", err)
		return false
	}
	return true
}

func (b *Bus) activeConn() (Conn, error) {
	b.mu.Lock()
	conn, closed := b.conn, b.closed
	b.mu.Unlock()

	if conn != nil {
		return conn, nil
	}
	if closed {
		return nil, ErrClosed
	}

	if err := b.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil, ErrNotConnected
	}
	return b.conn, nil
}

// PublishRecord announces one record.
func (b *Bus) PublishRecord(r record.Record) bool {
	return b.Publish(NewRecord{Record: r})
}

// PublishRecords announces a batch, in as many messages as it takes to
// keep each under the message size limit.
func (b *Bus) PublishRecords(rs []record.Record) bool {
	if err := b.SendRecords(rs); err != nil {
		b.logger.Warn("publish failed", "type", TypeMultipleRecords, "records", len(rs), "error", err)
		return false
	}
	return true
}

// SendRecords is PublishRecords returning the error.
func (b *Bus) SendRecords(rs []record.Record) error {
	return b.sendSplit(rs, func(part []record.Record) Payload {
		return MultipleRecords{Records: part, Count: len(part)}
	})
}

// sendSplit sends wrap(rs), halving rs until every message encodes under
// b.maxMessage. Parts go out in order. A single record over the limit
// fails with ErrMessageTooLarge.
func (b *Bus) sendSplit(rs []record.Record, wrap func([]record.Record) Payload) error {
	conn, err := b.activeConn()
	if err != nil {
		return err
	}
	return b.sendParts(conn, rs, wrap)
}

func (b *Bus) sendParts(conn Conn, rs []record.Record, wrap func([]record.Record) Payload) error {
	p := wrap(rs)
	data, err := encode(b.peerID, p)
	if err != nil {
		return err
	}

	if len(data) > b.maxMessage {
		if len(rs) <= 1 {
			return fmt.Errorf("send %s: %d bytes: %w", p.Type(), len(data), ErrMessageTooLarge)
		}
		mid := len(rs) / 2
		if err := b.sendParts(conn, rs[:mid], wrap); err != nil {
			return err
		}
		return b.sendParts(conn, rs[mid:], wrap)
	}

	if err := conn.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", p.Type(), err)
	}
	return nil
}

// RequestSync asks live peers for their recent history.
func (b *Bus) RequestSync() bool {
	return b.Publish(SyncRequest{Timestamp: b.now()})
}

// PublishStatus broadcasts an application status document.
func (b *Bus) PublishStatus(s Status) bool {
	return b.Publish(s)
}

// PublishError tells peers about a local failure.
func (b *Bus) PublishError(msg string) bool {
	return b.Publish(ErrorReport{Message: msg, Timestamp: b.now()})
}

// Subscribe registers fn for messages of type t. Callbacks for a type run in
// registration order.
func (b *Bus) Subscribe(t MessageType, fn Handler) Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.nextID++
	b.subs[t] = append(b.subs[t], subscriber{id: b.nextID, fn: fn})
	return Subscription{typ: t, id: b.nextID}
}

// Unsubscribe removes a registration. It reports whether sub was present.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	list := b.subs[sub.typ]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.typ] = slices.Delete(slices.Clone(list), i, i+1)
			return true
		}
	}
	return false
}

func (b *Bus) receiveLoop(conn Conn, inbox *queue.Queue[Message]) {
	defer b.wg.Done()

	for {
		data, err := conn.Receive()
		if err != nil {
			if !errors.Is(err, ErrConnClosed) {
				b.logger.Warn("bus receive failed, disconnecting", "error", err)
				b.drop(conn)
			}
			return
		}

		msg, err := decode(data)
		if err != nil {
			b.logger.Warn("dropping undecodable message", "error", err)
			continue
		}
		if msg.From == b.peerID {
			continue
		}
		inbox.Enqueue(msg)
	}
}

// drop detaches conn after a transport failure, leaving the bus
// disconnected but not closed.
func (b *Bus) drop(conn Conn) {
	b.mu.Lock()
	if b.conn == conn {
		b.detachLocked()
	}
	b.mu.Unlock()
	_ = conn.Close()
}

func (b *Bus) dispatchLoop(ctx context.Context, inbox *queue.Queue[Message]) {
	defer b.wg.Done()

	for {
		msg, ok := inbox.Dequeue(ctx)
		if !ok {
			return
		}
		b.dispatch(ctx, msg)
	}
}

func (b *Bus) dispatch(ctx context.Context, msg Message) {
	t := msg.Payload.Type()

	b.subMu.RLock()
	subs := b.subs[t]
	sink, source := b.sink, b.source
	b.subMu.RUnlock()

	for _, s := range subs {
		b.safely(t, func() { s.fn(msg) })
	}
	b.safely(t, func() { b.handleBuiltin(ctx, msg, sink, source) })
}

// safely runs fn, logging a panic instead of letting it reach the
// dispatcher.
func (b *Bus) safely(t MessageType, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus listener panicked", "type", t, "panic", r)
		}
	}()
	fn()
}

func (b *Bus) handleBuiltin(ctx context.Context, msg Message, sink RecordSink, source HistorySource) {
	switch p := msg.Payload.(type) {
	case Ping:
		b.Publish(Pong{Timestamp: b.now()})

	case Pong:
		b.logger.Debug("pong", "from", msg.From)

	case NewRecord:
		if sink == nil {
			return
		}
		if err := sink.ReceiveRemote(p.Record); err != nil {
			b.logger.Warn("remote record rejected", "from", msg.From, "error", err)
		}

	case MultipleRecords:
		if sink == nil {
			return
		}
		if err := sink.ReceiveRemoteBatch(p.Records); err != nil {
			b.logger.Warn("remote batch partly rejected", "from", msg.From, "count", len(p.Records), "error", err)
		}

	case SyncRequest:
		if source == nil {
			return
		}
		recs, err := source.Recent(ctx, b.syncLimit)
		if err != nil {
			b.logger.Warn("sync request unanswered", "from", msg.From, "error", err)
			return
		}
		err = b.sendSplit(recs, func(part []record.Record) Payload {
			return SyncResponse{Records: part}
		})
		if err != nil {
			b.logger.Warn("sync response failed", "to", msg.From, "records", len(recs), "error", err)
		}

	case SyncResponse:
		if sink == nil {
			return
		}
		merged := sink.ReceiveSyncResponse(p.Records)
		b.logger.Debug("sync response merged", "from", msg.From, "received", len(p.Records), "merged", merged)

	case Status:
		b.logger.Debug("peer status", "from", msg.From)

	case ErrorReport:
		b.logger.Warn("peer reported error", "from", msg.From, "message", p.Message)
	}
}

func (b *Bus) now() int64 {
	return b.clock.Now().UnixMilli()
}
