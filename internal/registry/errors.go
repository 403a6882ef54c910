package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConditionalCheckFailed indicates that a conditional update was
	// rejected because the guard did not hold against the current row.
	// Callers distinguish it with errors.Is.
	ErrConditionalCheckFailed = errors.New("conditional check failed")

	// ErrKeyNotFound is the backend-level miss underlying ErrNotFound.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBackendClosed indicates an operation against a closed backend.
	ErrBackendClosed = errors.New("backend is closed")

	// ErrUnknownIndex indicates a query against an index the store does
	// not maintain.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrInvalidRecord indicates a record that cannot be stored, such as
	// a missing id or a key attribute containing a NUL byte.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidTable indicates an empty or malformed table name.
	ErrInvalidTable = errors.New("invalid table")

	// ErrDataCorrupt indicates a stored value that no longer decodes.
	ErrDataCorrupt = errors.New("data corruption detected")
)

// StoreError wraps a failure with the operation and backend it came from.
type StoreError struct {
	Op      string // The operation that failed
	Table   string // The table involved, if any
	ID      string // The record id involved, if any
	Backend string // The backend name
	Cause   error  // The underlying error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("registry %s %s/%s on %s: %v", e.Op, e.Table, e.ID, e.Backend, e.Cause)
	}
	if e.Table != "" {
		return fmt.Sprintf("registry %s %s on %s: %v", e.Op, e.Table, e.Backend, e.Cause)
	}
	return fmt.Sprintf("registry %s on %s: %v", e.Op, e.Backend, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Cause }

// Is reports whether the underlying error matches target.
func (e *StoreError) Is(target error) bool { return errors.Is(e.Cause, target) }

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConditionalCheckFailed reports whether err is a rejected conditional
// update.
func IsConditionalCheckFailed(err error) bool {
	return errors.Is(err, ErrConditionalCheckFailed)
}
