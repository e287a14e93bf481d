// Package store provides SQLite-backed durable storage for captured records.
//
// The store is an append-biased log: records are inserted, read back in
// identity order, counted, and cleared as a whole. They are never updated or
// deleted one at a time.
//
// # Identity and Ordering
//
//   - Every accepted record gets an INTEGER PRIMARY KEY AUTOINCREMENT id
//   - Ids are strictly increasing and never reused, even after Clear
//   - All reads are ORDER BY id ASC, never by capture time
//
// # Duplicates
//
// A non-empty record key is UNIQUE. Inserting the same capture twice (two
// processes persisting one broadcast) fails for that record only, with
// ErrDuplicate, and leaves the rest of the batch intact.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers across processes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for other processes' write locks
//   - BEGIN IMMEDIATE: batch writes from different processes serialize
//
// Setup is lazy: the first operation opens the file and applies the schema.
// Concurrent first callers share one setup attempt.
package store
