package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/oddsync/internal/queue"
	"github.com/roach88/oddsync/internal/record"
	"github.com/roach88/oddsync/internal/store"
)

// PersistResult is the outcome of persisting one remote record.
type PersistResult struct {
	Record record.Record

	// ID is the id the store assigned, 0 on failure.
	ID int64

	// Err is nil on success.
	Err error

	// Duplicate is set when the store already held the record's key,
	// usually because the sending process stored it first.
	Duplicate bool
}

// PersistSink is told about every background write.
type PersistSink interface {
	Persisted(PersistResult)
}

// PersistSinkFunc adapts a function to PersistSink.
type PersistSinkFunc func(PersistResult)

// Persisted calls f.
func (f PersistSinkFunc) Persisted(res PersistResult) { f(res) }

// logSink is the default PersistSink.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) Persisted(res PersistResult) {
	switch {
	case res.Duplicate:
		s.logger.Debug("remote record already stored", "key", res.Record.Key)
	case res.Err != nil:
		s.logger.Warn("background persistence failed", "key", res.Record.Key, "value", res.Record.Value, "error", res.Err)
	default:
		s.logger.Debug("remote record stored", "key", res.Record.Key, "id", res.ID)
	}
}

// PersistStats counts background writes since start.
type PersistStats struct {
	Submitted  int64 `json:"submitted"`
	Saved      int64 `json:"saved"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// persister writes remote records one at a time on a single goroutine.
type persister struct {
	store Store
	sink  PersistSink
	jobs  *queue.Queue[record.Record]
	done  chan struct{}

	submitted  atomic.Int64
	saved      atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64

	mu      sync.Mutex
	pending int
	waiters []chan struct{}
}

func newPersister(s Store, sink PersistSink) *persister {
	p := &persister{
		store: s,
		sink:  sink,
		jobs:  queue.New[record.Record](),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// submit queues r. It never blocks.
func (p *persister) submit(r record.Record) {
	p.submitted.Add(1)

	p.mu.Lock()
	p.pending++
	p.mu.Unlock()

	if !p.jobs.Enqueue(r) {
		p.report(PersistResult{Record: r, Err: ErrClosed})
		p.finish()
	}
}

func (p *persister) run() {
	defer close(p.done)

	for {
		r, ok := p.jobs.Dequeue(context.Background())
		if !ok {
			return
		}
		p.report(p.write(r))
		p.finish()
	}
}

func (p *persister) write(r record.Record) PersistResult {
	res := PersistResult{Record: r}

	appended, err := p.store.Append(context.Background(), []record.Record{r})
	if err != nil {
		res.Err = err
		return res
	}
	if len(appended.Failures) > 0 {
		res.Err = appended.Failures[0].Err
		res.Duplicate = errors.Is(res.Err, store.ErrDuplicate)
		return res
	}
	if len(appended.IDs) > 0 {
		res.ID = appended.IDs[0]
	}
	return res
}

func (p *persister) report(res PersistResult) {
	switch {
	case res.Duplicate:
		p.duplicates.Add(1)
	case res.Err != nil:
		p.failed.Add(1)
	default:
		p.saved.Add(1)
	}
	p.sink.Persisted(res)
}

func (p *persister) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending--
	if p.pending > 0 {
		return
	}
	for _, w := range p.waiters {
		close(w)
	}
	p.waiters = nil
}

// flush waits until every submitted record has been reported.
func (p *persister) flush(ctx context.Context) error {
	p.mu.Lock()
	if p.pending == 0 {
		p.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting records and waits for the queue to drain.
func (p *persister) close(ctx context.Context) error {
	p.jobs.Close()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *persister) stats() PersistStats {
	return PersistStats{
		Submitted:  p.submitted.Load(),
		Saved:      p.saved.Load(),
		Duplicates: p.duplicates.Load(),
		Failed:     p.failed.Load(),
	}
}
