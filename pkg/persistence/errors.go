package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types all backends use.
var (
	// ErrDefinitionNotFound indicates no definition exists for the given id or name.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrInstanceNotFound indicates no workflow instance exists for the given id.
	ErrInstanceNotFound = errors.New("workflow instance not found")
)

// StoreError wraps a backend failure with the operation and subject for
// attribution.
type StoreError struct {
	Op  string // Operation being performed, e.g. "GetByID", "Append"
	Key string // Definition/instance id if applicable
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Key, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a StoreError with context.
func NewStoreError(op, key string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Err: err}
}

// IsDefinitionNotFound checks whether an error indicates a missing definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsInstanceNotFound checks whether an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}
