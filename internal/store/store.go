package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/oddsync/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - records table with key, value, capture time and time-of-day indexes
const currentSchemaVersion = 1

// Store provides durable storage for captured records.
// Uses SQLite with WAL mode so several processes can share one file.
type Store struct {
	path     string
	minValue float64

	mu     sync.RWMutex
	db     *sql.DB
	closed bool

	setup singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithMinValue sets the smallest value Append accepts (default record.DefaultMinValue).
func WithMinValue(v float64) Option {
	return func(s *Store) {
		s.minValue = v
	}
}

// New returns a store backed by the SQLite file at path.
// Nothing is opened until the first operation.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:     path,
		minValue: record.DefaultMinValue,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates or opens the store at path and applies the schema eagerly.
//
// This function is idempotent - safe to call multiple times on one path.
func Open(path string, opts ...Option) (*Store, error) {
	s := New(path, opts...)
	if _, err := s.conn(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// MinValue returns the smallest value Append accepts.
func (s *Store) MinValue() float64 {
	return s.minValue
}

// Close closes the database connection. Later operations fail with
// ErrUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// conn returns the ready database, running setup on first use.
//
// Concurrent callers during setup wait on the same attempt. A failed setup
// is not remembered: the next call tries again.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.RLock()
	db, closed := s.db, s.closed
	s.mu.RUnlock()

	if closed {
		return nil, unavailable("open", errClosed)
	}
	if db != nil {
		return db, nil
	}

	ch := s.setup.DoChan("setup", func() (any, error) {
		s.mu.RLock()
		ready := s.db
		s.mu.RUnlock()
		if ready != nil {
			return ready, nil
		}

		db, err := openDB(s.path)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			db.Close()
			return nil, errClosed
		}
		s.db = db
		return db, nil
	})

	select {
	case <-ctx.Done():
		return nil, unavailable("open", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, unavailable("open", res.Err)
		}
		return res.Val.(*sql.DB), nil
	}
}

// openDB opens the file, verifies the connection and applies the schema.
//
// Pragmas travel in the DSN so every pooled connection gets them:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention between processes
//   - IMMEDIATE transactions so writers queue instead of deadlocking
func openDB(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// applySchema creates tables if they don't exist and checks the version.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	db, err := s.conn(context.Background())
	if err != nil {
		return err
	}
	var value string
	if err := db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
