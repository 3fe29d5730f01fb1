// Package apperr classifies failures so the HTTP boundary can map them to
// client or server errors without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class of an error.
type Kind string

const (
	KindInternal             Kind = "internal"
	KindInvalidRequest       Kind = "invalid_request"
	KindNotFound             Kind = "not_found"
	KindInvalidConfiguration Kind = "invalid_configuration"
	KindInvalidOperation     Kind = "invalid_operation"
)

// Error is a classified error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err == nil:
		return e.Msg
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ErrKind lets *Error satisfy Classified.
func (e *Error) ErrKind() Kind { return e.Kind }

// Classified is implemented by error types outside this package that know
// their own kind (e.g. store.ErrNotFound).
type Classified interface {
	ErrKind() Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func InvalidRequest(format string, args ...any) error {
	return newf(KindInvalidRequest, format, args...)
}

func NotFound(format string, args ...any) error {
	return newf(KindNotFound, format, args...)
}

func InvalidConfiguration(format string, args ...any) error {
	return newf(KindInvalidConfiguration, format, args...)
}

func InvalidOperation(format string, args ...any) error {
	return newf(KindInvalidOperation, format, args...)
}

// Wrap attaches kind to err, keeping it in the chain.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.ErrKind()
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidConfiguration:
		return http.StatusPreconditionFailed
	case KindInvalidOperation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
