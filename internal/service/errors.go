package service

import (
	"fmt"
)

// ErrNotFound signals an unknown logical name or a blob missing from storage.
var ErrNotFound = fmt.Errorf("file not found")

// ValidationError is a malformed or out-of-protocol request field. Never
// retried automatically; the message is surfaced verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IntegrityError is a hash or size mismatch. The candidate bytes were
// discarded; the caller retries the failing unit.
type IntegrityError struct {
	Msg string
}

func (e *IntegrityError) Error() string {
	return e.Msg
}

// Integrityf builds an IntegrityError.
func Integrityf(format string, args ...interface{}) error {
	return &IntegrityError{Msg: fmt.Sprintf(format, args...)}
}

// StorageError wraps a blob-store failure. No partial state is visible: a
// candidate is never linked into metadata after one of these.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
