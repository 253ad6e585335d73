package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed domain error that knows its HTTP status.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
	Err     error    `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrImportFailed       = New("IMPORT_FAILED", http.StatusUnprocessableEntity, "import failed")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy carrying the given detail lines.
func WithDetails(err *Error, details []string) *Error {
	clone := Clone(err, "")
	if clone == nil {
		return nil
	}
	clone.Details = append([]string(nil), details...)
	return clone
}

// Is reports whether err carries the given code.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == target.Code
	}
	return false
}
