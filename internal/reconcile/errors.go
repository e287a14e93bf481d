package reconcile

import (
	"errors"
	"fmt"
)

// ErrClosed is reported for records submitted after Close.
var ErrClosed = errors.New("reconcile: closed")

// StorageError reports a durable store failure during a Reconciler
// operation. In-memory views are left as they were before the operation.
type StorageError struct {
	// Op names the Reconciler operation.
	Op string

	// Err is the store error.
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError returns true if err is or wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
