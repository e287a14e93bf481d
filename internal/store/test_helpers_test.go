package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/oddsync/internal/record"
)

var testNow = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a manual record captured offset after testNow.
func createTestRecord(key string, value float64, offset time.Duration) record.Record {
	return record.New(value, "", record.SourceManual, key, testNow.Add(offset))
}
