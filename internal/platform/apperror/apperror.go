// Package apperror defines the typed failure values returned by domain
// services. Every failure carries a stable machine-checkable code so HTTP
// handlers (and API clients) can branch on the reason without matching on
// message text.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the reason a domain operation was rejected.
type Code string

const (
	CodeValidation      Code = "validation"
	CodeUnauthorized    Code = "unauthorized"
	CodeNotFound        Code = "not_found"
	CodeSlotFull        Code = "slot_full"
	CodeSlotUnavailable Code = "slot_unavailable"
	CodeDuplicateSlot   Code = "duplicate_slot"
	CodeDuplicateDaily  Code = "duplicate_daily_booking"
	CodeInvalidState    Code = "invalid_transition"
	CodeConflict        Code = "conflict"
)

// Error is a domain failure with a stable reason code and a human-readable
// message. Two Errors match under errors.Is when their codes are equal, so
// services can return enriched messages while callers compare against the
// sentinel values below.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel values for errors.Is comparisons.
var (
	ErrValidation      = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrUnauthorized    = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrSlotFull        = &Error{Code: CodeSlotFull, Message: "fully booked"}
	ErrSlotUnavailable = &Error{Code: CodeSlotUnavailable, Message: "slot unavailable"}
	ErrDuplicateSlot   = &Error{Code: CodeDuplicateSlot, Message: "duplicate slot"}
	ErrDuplicateDaily  = &Error{Code: CodeDuplicateDaily, Message: "already booked today"}
	ErrInvalidState    = &Error{Code: CodeInvalidState, Message: "invalid state transition"}
	ErrConflict        = &Error{Code: CodeConflict, Message: "write conflict"}
)

// HTTPStatus maps a reason code to the HTTP status the API surfaces.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSlotFull, CodeSlotUnavailable, CodeDuplicateSlot,
		CodeDuplicateDaily, CodeInvalidState, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf extracts the reason code, or empty string for non-domain errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
