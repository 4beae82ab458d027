package queue

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
)

// Kind classifies queue errors so callers can decide between retrying,
// reporting, or aborting.
type Kind string

const (
	// KindNotFound reports an unknown job id.
	KindNotFound Kind = "not_found"
	// KindInvalidArgument reports a caller contract violation.
	KindInvalidArgument Kind = "invalid_argument"
	// KindStoreUnavailable reports a transient connectivity or transaction
	// failure. The whole operation is safe to re-issue.
	KindStoreUnavailable Kind = "store_unavailable"
	// KindStoreCorruption reports a row or schema shape the store does not
	// understand. Retrying will not help.
	KindStoreCorruption Kind = "store_corruption"
)

// ErrorClassifier allows errors to declare their classification.
type ErrorClassifier interface {
	// ErrorKind returns one of the Kind values as a string.
	ErrorKind() string
}

// ErrNotFound is matched by errors.Is for every not-found queue error.
var ErrNotFound = errors.New("job not found")

// Error is the error type returned by Store operations.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements ErrorClassifier.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// Is lets errors.Is(err, ErrNotFound) match any not-found Error.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Kind == KindNotFound
}

// KindOf extracts the classification of err. Errors that carry no
// classification are treated as store unavailability.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		switch kind := Kind(classifier.ErrorKind()); kind {
		case KindNotFound, KindInvalidArgument, KindStoreUnavailable, KindStoreCorruption:
			return kind
		}
	}
	return KindStoreUnavailable
}

// IsNotFound reports whether err describes an unknown job.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func notFound(op, id string) error {
	return &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf("job %q: %w", id, ErrNotFound)}
}

func invalidArgument(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindInvalidArgument, Err: fmt.Errorf(format, args...)}
}

func corruption(op string, err error) error {
	return &Error{Op: op, Kind: KindStoreCorruption, Err: err}
}

// classify wraps a driver error with its queue kind. Errors that are already
// classified keep their kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, ErrSchemaMismatch) {
		return corruption(op, err)
	}
	return &Error{Op: op, Kind: KindStoreUnavailable, Err: err}
}

// transient reports whether a driver error is a connectivity or lock
// failure. Used for diagnostics only; the store never retries on its own.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isSQLiteBusy(err)
}
