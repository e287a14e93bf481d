package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/oddsync/internal/parser"
	"github.com/roach88/oddsync/internal/record"
	"github.com/roach88/oddsync/internal/settings"
	"github.com/roach88/oddsync/internal/store"
)

const (
	// DefaultMaxHistorySize caps the realtime buffer and the base view.
	DefaultMaxHistorySize = 20000

	// announceBatch bounds one announced MultipleRecords message.
	announceBatch = 100
)

// Store is the durable store as the Reconciler uses it.
// Implemented by *store.Store.
type Store interface {
	Append(ctx context.Context, records []record.Record) (store.AppendResult, error)
	ReadAll(ctx context.Context, limit int) ([]record.Record, error)
	Clear(ctx context.Context) error
}

// Publisher announces to other processes. Implemented by *bus.Bus.
type Publisher interface {
	PublishRecords(rs []record.Record) bool
	RequestSync() bool
}

// Settings persists small values across restarts.
// Implemented by *settings.Store.
type Settings interface {
	Get(slot settings.Slot, v any) (bool, error)
	Put(slot settings.Slot, v any) error
	Remove(slot settings.Slot) error
}

// IngestResult reports one Ingest.
type IngestResult struct {
	// Records is the new base view, with store ids where saving succeeded.
	Records []record.Record `json:"records"`

	ParseErrors int                `json:"parseErrors"`
	TotalLines  int                `json:"totalLines"`
	Rejected    []parser.Rejection `json:"rejected,omitempty"`
	Saved       int                `json:"saved"`
	SaveErrors  int                `json:"saveErrors"`
}

// Snapshot summarizes the views. It is what the LastData slot holds.
type Snapshot struct {
	BaseCount     int       `json:"baseCount" yaml:"baseCount"`
	RealtimeCount int       `json:"realtimeCount" yaml:"realtimeCount"`
	FilteredCount int       `json:"filteredCount" yaml:"filteredCount"`
	LastUpdate    time.Time `json:"lastUpdate" yaml:"lastUpdate"`
	Filter        *Criteria `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// Reconciler is the per-process owner of the record views.
type Reconciler struct {
	store      Store
	parser     *parser.Parser
	publisher  Publisher
	settings   Settings
	clock      record.Clock
	logger     *slog.Logger
	minValue   float64
	maxHistory int
	announce   bool
	sink       PersistSink

	mu         sync.Mutex
	base       []record.Record
	realtime   []record.Record
	filtered   []record.Record
	criteria   *Criteria
	lastUpdate time.Time
	processing bool

	listeners *registry
	persister *persister
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithParser sets the parser used by Ingest. The default parser uses the
// Reconciler's minimum and clock.
func WithParser(p *parser.Parser) Option {
	return func(r *Reconciler) { r.parser = p }
}

// WithPublisher sets where announcements and sync requests go.
func WithPublisher(p Publisher) Option {
	return func(r *Reconciler) { r.publisher = p }
}

// WithSettings enables the filter and LastData slots.
func WithSettings(s Settings) Option {
	return func(r *Reconciler) { r.settings = s }
}

// WithMinValue sets the minimum accepted value.
func WithMinValue(v float64) Option {
	return func(r *Reconciler) { r.minValue = v }
}

// WithMaxHistorySize caps the realtime buffer and base view.
func WithMaxHistorySize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxHistory = n
		}
	}
}

// WithClock sets the clock for lastUpdate.
func WithClock(c record.Clock) Option {
	return func(r *Reconciler) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPersistSink replaces the logging sink for background writes.
func WithPersistSink(s PersistSink) Option {
	return func(r *Reconciler) { r.sink = s }
}

// WithAnnounce makes Ingest publish the ingested records to peers.
func WithAnnounce(on bool) Option {
	return func(r *Reconciler) { r.announce = on }
}

// New creates a Reconciler with empty views and starts its background
// persister. Call Close to stop it.
func New(s Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:      s,
		clock:      record.SystemClock{},
		logger:     slog.Default(),
		minValue:   record.DefaultMinValue,
		maxHistory: DefaultMaxHistorySize,
		base:       []record.Record{},
		realtime:   []record.Record{},
		filtered:   []record.Record{},
		listeners:  newRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parser == nil {
		r.parser = parser.New(parser.WithMinValue(r.minValue), parser.WithClock(r.clock))
	}
	if r.sink == nil {
		r.sink = logSink{logger: r.logger}
	}
	r.persister = newPersister(s, r.sink)
	return r
}

// Ingest parses text, stores the records and makes them the base view.
//
// Input with no valid record fails with a record.ValidationError and a store
// failure with a StorageError; neither touches the views.
func (r *Reconciler) Ingest(ctx context.Context, text string) (IngestResult, error) {
	r.setProcessing(true)
	defer r.setProcessing(false)

	parsed := r.parser.Parse(text)
	res := IngestResult{
		ParseErrors: parsed.ErrorCount,
		TotalLines:  parsed.TotalLineCount,
		Rejected:    parsed.Rejected,
	}

	if len(parsed.Records) == 0 {
		err := &record.ValidationError{Code: record.ErrCodeNoRecords, Message: "no valid records"}
		r.emit(failure("ingest", err))
		return res, err
	}

	appended, err := r.store.Append(ctx, parsed.Records)
	if err != nil {
		serr := &StorageError{Op: "ingest", Err: err}
		r.emit(failure("ingest", serr))
		return res, serr
	}

	records := record.Clone(parsed.Records)
	for i, id := range appended.IDs {
		records[i].ID = id
	}
	for _, f := range appended.Failures {
		r.logger.Warn("ingested record not stored", "index", f.Index, "error", f.Err)
	}

	res.Records = record.Clone(records)
	res.Saved = appended.SavedCount
	res.SaveErrors = appended.ErrorCount

	r.mu.Lock()
	r.base = records
	r.filtered = records
	r.criteria = nil
	r.lastUpdate = r.clock.Now()
	r.mu.Unlock()

	r.emit(DataLoaded{
		Count:       len(records),
		ParseErrors: res.ParseErrors,
		TotalLines:  res.TotalLines,
		Saved:       res.Saved,
		SaveErrors:  res.SaveErrors,
	})
	r.saveSnapshot()

	if r.announce {
		r.announceRecords(records)
	}
	return res, nil
}

func (r *Reconciler) announceRecords(records []record.Record) {
	if r.publisher == nil {
		return
	}
	for start := 0; start < len(records); start += announceBatch {
		end := min(start+announceBatch, len(records))
		if !r.publisher.PublishRecords(records[start:end]) {
			r.logger.Warn("announce failed", "records", end-start)
		}
	}
}

func (r *Reconciler) setProcessing(on bool) {
	r.mu.Lock()
	r.processing = on
	r.mu.Unlock()
	r.emit(Processing{Active: on})
}

// Hydrate loads base and filtered from the store. A limit above zero loads
// the most recent limit records. The realtime buffer is not touched. A
// filter saved in settings is applied again.
func (r *Reconciler) Hydrate(ctx context.Context, limit int) (int, error) {
	r.setProcessing(true)
	defer r.setProcessing(false)

	records, err := r.store.ReadAll(ctx, limit)
	if err != nil {
		serr := &StorageError{Op: "hydrate", Err: err}
		r.emit(failure("hydrate", serr))
		return 0, serr
	}

	saved := r.loadFilter()

	r.mu.Lock()
	r.base = records
	if saved != nil {
		r.criteria = saved
	}
	r.filtered = derive(r.base, r.criteria)
	filtered := len(r.filtered)
	active := r.criteria != nil
	r.lastUpdate = r.clock.Now()
	r.mu.Unlock()

	r.emit(DataLoaded{Count: len(records)})
	if active {
		r.emit(FiltersApplied{Count: filtered})
	}
	return len(records), nil
}

// ReceiveRemote merges a record from another process. Records without a
// source are tagged realtime-sync. A record that fails validation returns a
// record.ValidationError and is not merged. The store write happens in the
// background.
func (r *Reconciler) ReceiveRemote(rec record.Record) error {
	if rec.Source == "" {
		rec.Source = record.SourceRealtimeSync
	}
	if err := record.Validate(rec, r.minValue); err != nil {
		return err
	}

	r.mu.Lock()
	r.realtime = prependCapped(r.realtime, rec, r.maxHistory)
	r.base = evictOldest(prepend(r.base, rec), r.maxHistory)
	r.filtered = derive(r.base, r.criteria)
	r.lastUpdate = r.clock.Now()
	r.mu.Unlock()

	r.persister.submit(rec)
	r.emit(RealtimeRecord{Record: rec})
	return nil
}

// ReceiveRemoteBatch merges records in order. Rejected records are skipped
// and their errors joined.
func (r *Reconciler) ReceiveRemoteBatch(rs []record.Record) error {
	var errs []error
	for _, rec := range rs {
		if err := r.ReceiveRemote(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReceiveSyncResponse merges catch-up history. Records whose id or key is
// already in base or realtime, or repeated within rs, are skipped. It returns how many
// records were merged.
func (r *Reconciler) ReceiveSyncResponse(rs []record.Record) int {
	r.mu.Lock()
	ids := make(map[int64]struct{}, len(r.base))
	keys := make(map[string]struct{}, len(r.base))
	for _, b := range r.base {
		markSeen(b, ids, keys)
	}
	for _, rt := range r.realtime {
		markSeen(rt, ids, keys)
	}
	r.mu.Unlock()

	merged := 0
	for _, rec := range rs {
		if seen(rec, ids, keys) {
			continue
		}
		markSeen(rec, ids, keys)
		if err := r.ReceiveRemote(rec); err != nil {
			r.logger.Debug("sync record rejected", "key", rec.Key, "error", err)
			continue
		}
		merged++
	}
	return merged
}

func seen(rec record.Record, ids map[int64]struct{}, keys map[string]struct{}) bool {
	if rec.ID > 0 {
		if _, ok := ids[rec.ID]; ok {
			return true
		}
	}
	if rec.Key != "" {
		if _, ok := keys[rec.Key]; ok {
			return true
		}
	}
	return false
}

func markSeen(rec record.Record, ids map[int64]struct{}, keys map[string]struct{}) {
	if rec.ID > 0 {
		ids[rec.ID] = struct{}{}
	}
	if rec.Key != "" {
		keys[rec.Key] = struct{}{}
	}
}

// RequestSync asks peers for recent history. It returns false without a
// publisher or when the publish fails.
func (r *Reconciler) RequestSync() bool {
	if r.publisher == nil {
		return false
	}
	return r.publisher.RequestSync()
}

// Recent returns the n most recent stored records. It answers sync requests
// from peers.
func (r *Reconciler) Recent(ctx context.Context, n int) ([]record.Record, error) {
	records, err := r.store.ReadAll(ctx, n)
	if err != nil {
		return nil, &StorageError{Op: "recent", Err: err}
	}
	return records, nil
}

// ApplyFilter narrows base by c and returns a copy of the result.
func (r *Reconciler) ApplyFilter(c Criteria) []record.Record {
	r.mu.Lock()
	r.criteria = &c
	r.filtered = derive(r.base, r.criteria)
	out := record.Clone(r.filtered)
	r.mu.Unlock()

	r.saveFilter(&c)
	r.emit(FiltersApplied{Count: len(out)})
	return out
}

// ClearFilter makes filtered equal base again.
func (r *Reconciler) ClearFilter() {
	r.mu.Lock()
	r.criteria = nil
	r.filtered = r.base
	r.mu.Unlock()

	r.saveFilter(nil)
	r.emit(FiltersCleared{})
}

// ClearAll empties the store and every view. Pending background writes are
// flushed first so none lands after the clear. Clearing an empty system
// succeeds.
func (r *Reconciler) ClearAll(ctx context.Context) error {
	if err := r.persister.flush(ctx); err != nil {
		serr := &StorageError{Op: "clear", Err: err}
		r.emit(failure("clear", serr))
		return serr
	}

	if err := r.store.Clear(ctx); err != nil {
		serr := &StorageError{Op: "clear", Err: err}
		r.emit(failure("clear", serr))
		return serr
	}

	r.mu.Lock()
	r.base = []record.Record{}
	r.realtime = []record.Record{}
	r.filtered = r.base
	r.lastUpdate = time.Time{}
	r.mu.Unlock()

	if r.settings != nil {
		if err := r.settings.Remove(settings.SlotLastData); err != nil {
			r.logger.Warn("remove last data snapshot", "error", err)
		}
	}
	r.emit(DataCleared{})
	return nil
}

// BasicStats summarizes base. It returns false when base is empty.
func (r *Reconciler) BasicStats() (Stats, bool) {
	r.mu.Lock()
	values := record.Values(r.base)
	last := r.lastUpdate
	r.mu.Unlock()
	return computeStats(values, last)
}

// Base returns a copy of the base view.
func (r *Reconciler) Base() []record.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return record.Clone(r.base)
}

// Filtered returns a copy of the filtered view.
func (r *Reconciler) Filtered() []record.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return record.Clone(r.filtered)
}

// Realtime returns a copy of the realtime buffer, newest first.
func (r *Reconciler) Realtime() []record.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return record.Clone(r.realtime)
}

// Values returns the values of the filtered view, or of base, for the
// analytics code.
func (r *Reconciler) Values(filtered bool) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if filtered {
		return record.Values(r.filtered)
	}
	return record.Values(r.base)
}

// LastUpdate returns when a view last changed, zero after ClearAll.
func (r *Reconciler) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdate
}

// IsProcessing reports whether an Ingest is running.
func (r *Reconciler) IsProcessing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processing
}

// Criteria returns the active filter, or nil.
func (r *Reconciler) Criteria() *Criteria {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.criteria == nil {
		return nil
	}
	c := *r.criteria
	return &c
}

// Snapshot summarizes the views.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		BaseCount:     len(r.base),
		RealtimeCount: len(r.realtime),
		FilteredCount: len(r.filtered),
		LastUpdate:    r.lastUpdate,
	}
	if r.criteria != nil {
		c := *r.criteria
		s.Filter = &c
	}
	return s
}

// PersistStats reports background write counters.
func (r *Reconciler) PersistStats() PersistStats {
	return r.persister.stats()
}

// Flush waits until every background write submitted so far is reported.
func (r *Reconciler) Flush(ctx context.Context) error {
	return r.persister.flush(ctx)
}

// Close drains the background persister. Remote records received after
// Close are merged in memory but reported to the sink as ErrClosed.
func (r *Reconciler) Close(ctx context.Context) error {
	return r.persister.close(ctx)
}

func (r *Reconciler) saveSnapshot() {
	if r.settings == nil {
		return
	}
	if err := r.settings.Put(settings.SlotLastData, r.Snapshot()); err != nil {
		r.logger.Warn("save last data snapshot", "error", err)
	}
}

func (r *Reconciler) saveFilter(c *Criteria) {
	if r.settings == nil {
		return
	}
	var err error
	if c == nil {
		err = r.settings.Remove(settings.SlotFilter)
	} else {
		err = r.settings.Put(settings.SlotFilter, c)
	}
	if err != nil {
		r.logger.Warn("save filter", "error", err)
	}
}

func (r *Reconciler) loadFilter() *Criteria {
	if r.settings == nil {
		return nil
	}
	var c Criteria
	found, err := r.settings.Get(settings.SlotFilter, &c)
	if err != nil {
		r.logger.Warn("load saved filter", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	return &c
}

func prepend(rs []record.Record, rec record.Record) []record.Record {
	out := make([]record.Record, 0, len(rs)+1)
	out = append(out, rec)
	return append(out, rs...)
}

// prependCapped prepends rec and drops from the tail past limit.
func prependCapped(rs []record.Record, rec record.Record, limit int) []record.Record {
	out := prepend(rs, rec)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// evictOldest drops the records with the earliest CapturedAt until at most
// limit remain. Among equal stamps the one latest in rs goes first.
func evictOldest(rs []record.Record, limit int) []record.Record {
	for len(rs) > limit {
		oldest := len(rs) - 1
		for i := len(rs) - 2; i >= 0; i-- {
			if rs[i].CapturedAt < rs[oldest].CapturedAt {
				oldest = i
			}
		}
		rs = append(rs[:oldest:oldest], rs[oldest+1:]...)
	}
	return rs
}
