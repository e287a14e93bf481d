// Package reconcile owns the in-memory views of one process and ties the
// parser, the durable store and the bus together.
//
// # Views
//
//   - base: the loaded set, from an ingest or a store hydrate, plus remote
//     records merged since
//   - realtime: remote records in arrival order, newest first, capped at the
//     maximum history size
//   - filtered: base narrowed by the active Criteria, or base itself when no
//     filter is active
//
// Base and the store are the system of record. Realtime and filtered are
// caches and can be rebuilt at any time.
//
// # Concurrency
//
// A Reconciler is safe for concurrent use. Its mutex guards the views only
// and is never held across a store call or a listener callback, so a remote
// merge can land while an Ingest is waiting on the store. Both end in a
// valid state; the later view replacement wins.
//
// # Persistence of remote records
//
// Remote records are merged into memory first and persisted by a single
// background worker. A failed write is reported to the PersistSink and
// never rolls back the merge. There is no retry.
package reconcile
