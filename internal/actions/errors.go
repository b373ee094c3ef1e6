package actions

import (
	"errors"
	"fmt"

	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/internal/bookings"
	"github.com/wolfman30/caremarket-platform/internal/favorites"
)

// Code classifies an action failure.
type Code string

const (
	CodeUnauthorized        Code = "unauthorized"
	CodeNotFoundOrProcessed Code = "not_found_or_processed"
	CodeValidation          Code = "validation"
	CodeConflict            Code = "conflict"
	CodeInternal            Code = "internal"
)

// internalMessage is the only text callers see for internal failures.
const internalMessage = "something went wrong"

// Error is the single error type returned by every action.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

func unauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }

func validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts an *Error, wrapping anything else as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Message: internalMessage, err: err}
}

// classify maps domain errors onto action codes.
func classify(err error) *Error {
	var e *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return e
	case errors.Is(err, bookings.ErrNotFoundOrProcessed):
		return &Error{Code: CodeNotFoundOrProcessed, Message: "booking not found or already processed", err: err}
	case errors.Is(err, bookings.ErrNotFound):
		return &Error{Code: CodeNotFoundOrProcessed, Message: "booking not found", err: err}
	case errors.Is(err, bookings.ErrConflict):
		return &Error{Code: CodeConflict, Message: "time slot is no longer available", err: err}
	case errors.Is(err, bookings.ErrProviderNotFound), errors.Is(err, favorites.ErrProviderNotFound):
		return &Error{Code: CodeValidation, Message: "provider not found", err: err}
	case errors.Is(err, bookings.ErrServiceNotFound):
		return &Error{Code: CodeValidation, Message: "service not found", err: err}
	case errors.Is(err, bookings.ErrDependentNotFound):
		return &Error{Code: CodeValidation, Message: "dependent not found", err: err}
	case errors.Is(err, bookings.ErrOutsideHours):
		return &Error{Code: CodeValidation, Message: "requested time is outside the provider's hours", err: err}
	case errors.Is(err, bookings.ErrTooSoon):
		return &Error{Code: CodeValidation, Message: "bookings must be made at least 24 hours in advance", err: err}
	case errors.Is(err, bookings.ErrInvalidRecurrence), errors.Is(err, bookings.ErrEmptySeries):
		return &Error{Code: CodeValidation, Message: err.Error(), err: err}
	case errors.Is(err, availability.ErrInvalidWindow), errors.Is(err, availability.ErrInvalidSchedule):
		return &Error{Code: CodeValidation, Message: err.Error(), err: err}
	default:
		return &Error{Code: CodeInternal, Message: internalMessage, err: err}
	}
}
