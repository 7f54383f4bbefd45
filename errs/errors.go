// Package errs defines the error taxonomy shared by the data layer.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	Configuration Kind = "configuration"
	Transport     Kind = "transport"
	Validation    Kind = "validation"
	NotFound      Kind = "not_found"
)

// ErrNotConfigured is returned synchronously when the backend endpoint is a placeholder.
var ErrNotConfigured = &Error{Kind: Configuration, Err: errors.New("backend is not configured")}

// Error carries the failing operation, the resource kind and the cause.
type Error struct {
	Kind     Kind
	Op       string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Resource != "" {
		msg = e.Resource + " " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrNotConfigured) works for any configuration error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New builds an *Error of the given kind.
func New(kind Kind, op, resource string, err error) *Error {
	return &Error{Kind: kind, Op: op, Resource: resource, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, resource, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Resource: resource, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

func IsNotFound(err error) bool { return Is(err, NotFound) }

func IsNotConfigured(err error) bool { return Is(err, Configuration) }
