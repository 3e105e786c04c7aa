// Package apperr defines the error kinds surfaced by the account services and
// their mapping onto HTTP status classes. Match kinds with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

type Error struct {
	kind    error
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.kind
}

func (e *Error) Unwrap() error {
	return e.cause
}

func Validation(message string) error {
	return &Error{kind: ErrValidation, Message: message}
}

func Conflict(message string) error {
	return &Error{kind: ErrConflict, Message: message}
}

func NotFound(message string) error {
	return &Error{kind: ErrNotFound, Message: message}
}

func Unauthorized(message string) error {
	return &Error{kind: ErrUnauthorized, Message: message}
}

// Internal keeps cause for logs and error reporting; PublicMessage never
// exposes it.
func Internal(message string, cause error) error {
	return &Error{kind: ErrInternal, Message: message, cause: cause}
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

func IsInternal(err error) bool {
	return HTTPStatus(err) == http.StatusInternalServerError
}
