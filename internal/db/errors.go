package db

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes of the store. Typed errors below
// match them with errors.Is.
var (
	// ErrStorage indicates the underlying database rejected or failed a
	// statement (unreachable store, constraint violation, unknown column).
	ErrStorage = errors.New("storage error")

	// ErrConfiguration indicates a request the store cannot express as SQL:
	// an unknown collection, or a write with no columns left to set.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation indicates input that is not a well-formed batch.
	ErrValidation = errors.New("validation error")
)

// StorageError wraps a driver failure with the operation and collection it
// happened in.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ConfigurationError reports a write the store refused to issue.
type ConfigurationError struct {
	Collection string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.Collection == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Collection, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ValidationError reports a malformed request.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IsStorage returns true if err is or wraps a storage failure.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsConfiguration returns true if err is or wraps a configuration failure.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsValidation returns true if err is or wraps a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func storageErr(op, collection string, err error) error {
	return &StorageError{Op: op, Collection: collection, Err: err}
}
