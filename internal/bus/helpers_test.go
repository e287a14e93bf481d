package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/oddsync/internal/record"
)

const testChannel = "odds-sync"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// connectBus creates a bus on hub and connects it, closing it at cleanup.
func connectBus(t *testing.T, tr Transport, id string, opts ...Option) *Bus {
	t.Helper()
	opts = append([]Option{WithPeerID(id), WithLogger(quietLogger())}, opts...)
	b := New(tr, testChannel, opts...)
	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// collector records every message delivered to a subscription.
type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) all() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// fakeSink records what the bus hands to the merge entry points.
type fakeSink struct {
	mu        sync.Mutex
	single    []record.Record
	batches   [][]record.Record
	responses [][]record.Record
}

func (s *fakeSink) ReceiveRemote(r record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.single = append(s.single, r)
	if r.Value < record.DefaultMinValue {
		return errors.New("below minimum")
	}
	return nil
}

func (s *fakeSink) ReceiveRemoteBatch(rs []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, rs)
	return nil
}

func (s *fakeSink) ReceiveSyncResponse(rs []record.Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, rs)
	return len(rs)
}

func (s *fakeSink) counts() (single, batches, responses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.single), len(s.batches), len(s.responses)
}

// fakeHistory answers sync requests from a fixed slice.
type fakeHistory struct {
	mu      sync.Mutex
	records []record.Record
	asked   []int
	err     error
}

func (h *fakeHistory) Recent(_ context.Context, n int) ([]record.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.asked = append(h.asked, n)
	if h.err != nil {
		return nil, h.err
	}
	if n < len(h.records) {
		return h.records[len(h.records)-n:], nil
	}
	return h.records, nil
}

func testRecord(key string, value float64) record.Record {
	return record.Record{
		ID:          1,
		Key:         key,
		Value:       value,
		TimeOfDay:   "10:00",
		CapturedAt:  1709978400000,
		Source:      record.SourceManual,
		CaptureDate: "2024-03-09",
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
