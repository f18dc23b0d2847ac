// Package errs provides classified errors shared by every layer of the
// service. Layers attach a Kind at their boundary; the HTTP layer maps
// kinds to status codes in exactly one place.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handling and HTTP mapping purposes.
type Kind int

const (
	// Internal is the zero value: an unexpected failure with no better home.
	Internal Kind = iota
	// NotFound means the requested entity does not exist.
	NotFound
	// InvalidInput means the caller supplied a malformed or out-of-range value.
	InvalidInput
	// DatabaseUnavailable means the database could not be reached or queried.
	DatabaseUnavailable
	// RemoteServiceError means a remote geoprocessing call failed.
	RemoteServiceError
	// RemoteTimeout means a remote geoprocessing call exceeded its deadline.
	RemoteTimeout
	// GeometryError means geometry could not be produced or was degenerate.
	GeometryError
	// ConfigurationError means the service configuration is unusable.
	ConfigurationError
	// NotAcceptable means no representation satisfies the requested format.
	NotAcceptable
)

// String returns the wire name of the kind, used as the "code" field of
// error response bodies.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case InvalidInput:
		return "InvalidInput"
	case DatabaseUnavailable:
		return "DatabaseUnavailable"
	case RemoteServiceError:
		return "RemoteServiceError"
	case RemoteTimeout:
		return "RemoteTimeout"
	case GeometryError:
		return "GeometryError"
	case ConfigurationError:
		return "ConfigurationError"
	case NotAcceptable:
		return "NotAcceptable"
	default:
		return "Internal"
	}
}

// Error carries a kind alongside the message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error with a formatted message.
func New(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error. A nil cause
// returns nil so call sites can wrap unconditionally.
func Wrap(k Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) error {
	return New(NotFound, format, args...)
}

// InvalidInputf builds an InvalidInput error.
func InvalidInputf(format string, args ...any) error {
	return New(InvalidInput, format, args...)
}

// KindOf returns the kind of err, unwrapping as needed. Unclassified
// errors report Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == k
}
