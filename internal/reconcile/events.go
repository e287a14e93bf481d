package reconcile

import (
	"slices"
	"sync"

	"github.com/roach88/oddsync/internal/record"
)

// EventKind names a Reconciler event.
type EventKind string

const (
	KindDataLoaded     EventKind = "dataLoaded"
	KindRealtimeRecord EventKind = "realtimeRecord"
	KindFiltersApplied EventKind = "filtersApplied"
	KindFiltersCleared EventKind = "filtersCleared"
	KindProcessing     EventKind = "processing"
	KindDataCleared    EventKind = "dataCleared"
	KindError          EventKind = "error"
)

// Kinds lists every event kind.
var Kinds = []EventKind{
	KindDataLoaded,
	KindRealtimeRecord,
	KindFiltersApplied,
	KindFiltersCleared,
	KindProcessing,
	KindDataCleared,
	KindError,
}

// Event is the closed set of Reconciler notifications.
type Event interface {
	Kind() EventKind
	isEvent()
}

// DataLoaded follows a successful Ingest or Hydrate. The parse and save
// counts are zero after a Hydrate.
type DataLoaded struct {
	Count       int `json:"count"`
	ParseErrors int `json:"parseErrors"`
	TotalLines  int `json:"totalLines"`
	Saved       int `json:"saved"`
	SaveErrors  int `json:"saveErrors"`
}

// RealtimeRecord follows a merged remote record.
type RealtimeRecord struct {
	Record record.Record `json:"record"`
}

// FiltersApplied follows ApplyFilter, and a Hydrate that restored a saved
// filter.
type FiltersApplied struct {
	Count int `json:"count"`
}

// FiltersCleared follows ClearFilter.
type FiltersCleared struct{}

// Processing brackets an Ingest.
type Processing struct {
	Active bool `json:"active"`
}

// DataCleared follows ClearAll.
type DataCleared struct{}

// Failure reports an operation that failed.
type Failure struct {
	Op      string `json:"op"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (DataLoaded) Kind() EventKind     { return KindDataLoaded }
func (RealtimeRecord) Kind() EventKind { return KindRealtimeRecord }
func (FiltersApplied) Kind() EventKind { return KindFiltersApplied }
func (FiltersCleared) Kind() EventKind { return KindFiltersCleared }
func (Processing) Kind() EventKind     { return KindProcessing }
func (DataCleared) Kind() EventKind    { return KindDataCleared }
func (Failure) Kind() EventKind        { return KindError }

func (DataLoaded) isEvent()     {}
func (RealtimeRecord) isEvent() {}
func (FiltersApplied) isEvent() {}
func (FiltersCleared) isEvent() {}
func (Processing) isEvent()     {}
func (DataCleared) isEvent()    {}
func (Failure) isEvent()        {}

func failure(op string, err error) Failure {
	return Failure{Op: op, Message: err.Error(), Err: err}
}

// Listener receives events of the kind it was registered for.
type Listener func(Event)

// Subscription identifies one On registration.
type Subscription struct {
	kind EventKind
	id   uint64
}

type listener struct {
	id uint64
	fn Listener
}

// registry holds listeners per kind in registration order.
type registry struct {
	mu     sync.RWMutex
	byKind map[EventKind][]listener
	nextID uint64
}

func newRegistry() *registry {
	return &registry{byKind: make(map[EventKind][]listener)}
}

func (g *registry) add(kind EventKind, fn Listener) Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	g.byKind[kind] = append(g.byKind[kind], listener{id: g.nextID, fn: fn})
	return Subscription{kind: kind, id: g.nextID}
}

func (g *registry) remove(sub Subscription) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	list := g.byKind[sub.kind]
	for i, l := range list {
		if l.id == sub.id {
			g.byKind[sub.kind] = slices.Delete(slices.Clone(list), i, i+1)
			return true
		}
	}
	return false
}

func (g *registry) snapshot(kind EventKind) []listener {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byKind[kind]
}

// On registers fn for events of kind.
func (r *Reconciler) On(kind EventKind, fn Listener) Subscription {
	return r.listeners.add(kind, fn)
}

// Off removes a registration. It reports whether sub was present.
func (r *Reconciler) Off(sub Subscription) bool {
	return r.listeners.remove(sub)
}

// emit delivers ev to its listeners. Callers must not hold r.mu.
func (r *Reconciler) emit(ev Event) {
	for _, l := range r.listeners.snapshot(ev.Kind()) {
		r.deliver(l, ev)
	}
}

func (r *Reconciler) deliver(l listener, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("event listener panicked", "kind", ev.Kind(), "panic", p)
		}
	}()
	l.fn(ev)
}
