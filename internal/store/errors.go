package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrUnavailable is matched (via errors.Is) by every failure of the storage
// engine itself. Callers treat it as retryable, never as fatal.
var ErrUnavailable = errors.New("store unavailable")

// ErrDuplicate reports a record whose key is already stored.
var ErrDuplicate = errors.New("duplicate record key")

var errClosed = errors.New("store closed")

// UnavailableError wraps an engine failure with the operation that hit it.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.Op, e.Err)
}

// Unwrap exposes the underlying engine error.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnavailable) true for every UnavailableError.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// IsUnavailable returns true if err is or wraps an UnavailableError.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
