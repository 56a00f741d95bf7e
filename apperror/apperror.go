// Package apperror defines the error taxonomy shared by handlers and the HTTP
// status each kind maps to.
package apperror

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindUpstream Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindAlreadyProcessed
	KindRateLimited
)

// Status returns the HTTP status for the kind. AlreadyProcessed is reported as
// a plain 400.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindAlreadyProcessed:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Error is an error with a kind, a client-safe message and optional field
// errors. Err is the cause and is never shown to clients.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(message string, fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// Field is a validation error on a single field.
func Field(field, message string) *Error {
	return Validation("Validation failed", map[string][]string{field: {message}})
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func AlreadyProcessed(message string) *Error {
	return &Error{Kind: KindAlreadyProcessed, Message: message}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

// Upstream wraps a failure of the database, mailer or file host.
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// From returns the *Error in err's chain, or wraps err as an upstream failure.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Upstream("Something went wrong", err)
}
