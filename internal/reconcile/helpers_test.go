package reconcile

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/oddsync/internal/parser"
	"github.com/roach88/oddsync/internal/record"
	"github.com/roach88/oddsync/internal/store"
	"github.com/roach88/oddsync/internal/testutil"
)

var testNow = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// faultStore wraps a real store and fails operations on demand.
type faultStore struct {
	*store.Store

	mu        sync.Mutex
	appendErr error
	readErr   error
	clearErr  error
	gate      chan struct{}
}

// holdAppends blocks every Append until the returned func is called.
func (f *faultStore) holdAppends() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *faultStore) failAppend(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendErr = err
}

func (f *faultStore) failRead(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *faultStore) failClear(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearErr = err
}

func (f *faultStore) Append(ctx context.Context, rs []record.Record) (store.AppendResult, error) {
	f.mu.Lock()
	err, gate := f.appendErr, f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return store.AppendResult{}, err
	}
	return f.Store.Append(ctx, rs)
}

func (f *faultStore) ReadAll(ctx context.Context, limit int) ([]record.Record, error) {
	f.mu.Lock()
	err := f.readErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.ReadAll(ctx, limit)
}

func (f *faultStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	err := f.clearErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Clear(ctx)
}

// unavailableErr mimics what a broken store returns.
func unavailableErr() error {
	return &store.UnavailableError{Op: "append: begin tx", Err: io.ErrUnexpectedEOF}
}

type fixture struct {
	rec   *Reconciler
	store *faultStore
	clock *testutil.FakeClock
}

// newFixture builds a Reconciler over a temp SQLite store with
// deterministic keys and a frozen clock.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "odds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fs := &faultStore{Store: s}
	clock := testutil.NewFakeClock(testNow)
	p := parser.New(parser.WithClock(clock), parser.WithKeys(record.NewFixedKeys()))

	base := []Option{WithParser(p), WithClock(clock), WithLogger(quietLogger())}
	rec := New(fs, append(base, opts...)...)
	t.Cleanup(func() { _ = rec.Close(context.Background()) })

	return &fixture{rec: rec, store: fs, clock: clock}
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	require.NoError(t, f.rec.Flush(context.Background()))
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	return n
}

// eventLog records every event a Reconciler emits.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(r *Reconciler) *eventLog {
	l := &eventLog{}
	for _, k := range Kinds {
		r.On(k, func(ev Event) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.events = append(l.events, ev)
		})
	}
	return l
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) kinds() []EventKind {
	var out []EventKind
	for _, ev := range l.all() {
		out = append(out, ev.Kind())
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// fakePublisher records announcements.
type fakePublisher struct {
	mu      sync.Mutex
	batches [][]record.Record
	syncs   int
	fail    bool
}

func (p *fakePublisher) PublishRecords(rs []record.Record) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, record.Clone(rs))
	return !p.fail
}

func (p *fakePublisher) RequestSync() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncs++
	return !p.fail
}

// remote builds a record as another process would send it.
func remote(id int64, key string, value float64, offset time.Duration) record.Record {
	r := record.New(value, "", record.SourceRealtimeSync, key, testNow.Add(offset))
	r.ID = id
	return r
}

func keysOf(rs []record.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Key
	}
	return out
}

func ptr[T any](v T) *T { return &v }
