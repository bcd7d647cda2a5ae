// Package svcerr provides the unified error representation shared by the
// RPC and HTTP surfaces, grounded on the teacher's infrastructure/errors
// package: a single structured error type that carries both an HTTP status
// and a stable short code, so both surfaces map identically from one value.
package svcerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable error classification from spec.md §7.
type Kind string

const (
	KindMissingKey     Kind = "MISSING_KEY"
	KindInactiveUser   Kind = "INACTIVE_USER"
	KindPermission     Kind = "PERMISSION_DENIED"
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindInvalidInput   Kind = "INVALID_INPUT"
	KindSemantic       Kind = "SEMANTIC_FAILURE"
	KindInternal       Kind = "INTERNAL"
	KindFailedPrecond  Kind = "FAILED_PRECONDITION"
)

// httpStatusByKind mirrors spec.md §7's Kind -> surface table.
var httpStatusByKind = map[Kind]int{
	KindMissingKey:    http.StatusUnauthorized,
	KindInactiveUser:  http.StatusForbidden,
	KindPermission:    http.StatusForbidden,
	KindNotFound:      http.StatusNotFound,
	KindConflict:      http.StatusConflict,
	KindInvalidInput:  http.StatusBadRequest,
	KindSemantic:      http.StatusUnprocessableEntity,
	KindFailedPrecond: http.StatusUnprocessableEntity,
	KindInternal:      http.StatusInternalServerError,
}

// Error is a structured error carrying a stable kind, a message safe to
// show to a client, an HTTP status, optional structured details, and the
// wrapped cause (never serialized — stack/cause detail never leaves the
// process, per spec.md §7).
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches a structured detail key/value and returns the
// receiver for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New constructs an Error of the given kind with its conventional HTTP
// status.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatusByKind[kind]}
}

// Wrap constructs an Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatusByKind[kind], Err: err}
}

func MissingKey(message string) *Error   { return New(KindMissingKey, message) }
func InactiveUser(message string) *Error { return New(KindInactiveUser, message) }
func PermissionDenied(message string) *Error {
	return New(KindPermission, message)
}
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func InvalidInput(message string) *Error { return New(KindInvalidInput, message) }
func Semantic(message string) *Error     { return New(KindSemantic, message) }
func FailedPrecondition(message string) *Error {
	return New(KindFailedPrecond, message)
}
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// As reports whether err (or something it wraps) is an *Error, like
// errors.As without forcing callers to import "errors" at call sites that
// only need this one type.
func As(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}
