package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an operational error.
type Kind int

const (
	// KindValidation indicates malformed or missing client input.
	KindValidation Kind = iota + 1
	// KindNotFound indicates a referenced entity is absent.
	KindNotFound
	// KindConflict indicates a state conflict, e.g. overlapping validity intervals.
	KindConflict
	// KindUnauthorized indicates a missing or invalid credential.
	KindUnauthorized
	// KindForbidden indicates a failed role/company/ownership check.
	KindForbidden
	// KindUpstream indicates a failure of an external dependency.
	KindUpstream
	// KindDuplicate indicates a duplicate-key write.
	KindDuplicate
)

// Error is an operational error that is safe to surface to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an operational error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an operational error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the error kind, or 0 when err is not operational.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return 0
}

// IsOperational reports whether err carries a client-facing status class.
func IsOperational(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr)
}

// HTTPStatus maps an error to its HTTP status code. Non-operational
// errors map to 500 and must not be surfaced verbatim.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindDuplicate:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
