// Package record defines the captured observation shared by every other
// oddsync package.
//
// This package contains the Record value type, its provenance enum, key
// generation and validation. All other internal packages import record;
// record imports nothing internal.
//
// Key design constraints:
//   - Records are values and are never mutated after creation
//   - ID is assigned by the durable store; 0 means "not persisted yet"
//   - Key is the cross-process identity of one capture (UUIDv7)
//   - All JSON tags use camelCase to match the bus envelope
package record
