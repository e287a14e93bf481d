package record

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// KeyGenerator produces capture keys for new records.
// Implemented by UUIDv7Generator (production) and FixedKeys (tests).
type KeyGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 keys.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedKeys returns predetermined keys, then falls back to "key-N".
//
// Thread-safety: FixedKeys is safe for concurrent use via internal mutex.
type FixedKeys struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewFixedKeys creates a generator that returns keys in order.
func NewFixedKeys(keys ...string) *FixedKeys {
	return &FixedKeys{keys: keys}
}

// Generate returns the next predetermined key.
func (g *FixedKeys) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.keys) {
		return g.keys[g.idx-1]
	}
	return "key-" + strconv.Itoa(g.idx)
}
