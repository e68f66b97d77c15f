package core

import (
	"github.com/pkg/errors"
)

var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAccessDenied      = errors.New("permission denied")
	ErrNotFound          = errors.New("not found")
	ErrIncompleteViewing = errors.New("all videos must be watched before submitting")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "validation failed"
	}
	return err.Err.Error()
}

// BackendError reports that the Data Store, the Blob Store or the identity provider could not be reached.
// Callers may retry it with backoff.
type BackendError struct {
	Op  string
	Err error
}

func NewBackendError(op string, err error) error {
	return &BackendError{Op: op, Err: err}
}

func (err BackendError) Error() string {
	if err.Err == nil {
		return err.Op + ": backend unavailable"
	}
	return err.Op + ": backend unavailable: " + err.Err.Error()
}

func (err BackendError) Unwrap() error { return err.Err }

func IsBackendUnavailable(err error) bool {
	_, ok := errors.Cause(err).(*BackendError)
	return ok
}

// StoreError classifies an error returned by a DataStore call.
// NotFound, validation and shutdown errors keep their identity, everything else becomes a BackendError.
func StoreError(err error, op string) error {
	if err == nil {
		return nil
	}
	switch cause := errors.Cause(err).(type) {
	case *ValidationError, *BackendError, *shutdown:
		return errors.Wrap(err, op)
	default:
		if cause == ErrNotFound {
			return errors.Wrap(err, op)
		}
		return NewBackendError(op, err)
	}
}

// IsNotFound reports whether the root cause of err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// shutdown is returned once a store has been closed; the API stops when it sees one.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
