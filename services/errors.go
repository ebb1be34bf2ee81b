package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures. Transport layers map kinds to their
// own status codes; the engine itself never deals in HTTP.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_error"
	KindForbidden           ErrorKind = "forbidden"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidState        ErrorKind = "invalid_state"
	KindPaymentRequired     ErrorKind = "payment_required"
	KindPaymentVerification ErrorKind = "payment_verification_failed"
	KindPaymentNotConfirmed ErrorKind = "payment_not_confirmed"
	KindInsufficientPayment ErrorKind = "insufficient_payment"
	KindInvalidCode         ErrorKind = "invalid_code"
)

// Error is the error type returned by every service operation.
type Error struct {
	Kind    ErrorKind
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

// Is lets errors.Is match against the kind markers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

// Kind markers for errors.Is.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrNotFoundKind        = &Error{Kind: KindNotFound}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrPaymentRequired     = &Error{Kind: KindPaymentRequired}
	ErrPaymentVerification = &Error{Kind: KindPaymentVerification}
	ErrPaymentNotConfirmed = &Error{Kind: KindPaymentNotConfirmed}
	ErrInsufficientPayment = &Error{Kind: KindInsufficientPayment}
	ErrInvalidCode         = &Error{Kind: KindInvalidCode}
)

// KindOf returns the kind of err, or "" when err is not a service error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

func forbiddenError(format string, args ...any) error {
	return newError(KindForbidden, format, args...)
}

func notFoundError(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func invalidStateError(format string, args ...any) error {
	return newError(KindInvalidState, format, args...)
}

// Store-level sentinels returned by repositories.
var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record changed concurrently")
	ErrDuplicate = errors.New("duplicate key")
)

// lookupError turns a repository read failure into a service error.
func lookupError(err error, what, id string) error {
	if errors.Is(err, ErrNotFound) {
		return notFoundError("%s %s not found", what, id)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}
