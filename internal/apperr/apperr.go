// Package apperr defines the failure taxonomy shared by all services.
// Handlers map kinds to HTTP statuses; services return kinded errors instead
// of raw store errors so callers can distinguish outcomes.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidState
	KindExpired
	KindAlreadyUsed
	KindConflict
	KindInvalidToken
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindExpired:
		return "expired"
	case KindAlreadyUsed:
		return "already_used"
	case KindConflict:
		return "conflict"
	case KindInvalidToken:
		return "invalid_token"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error carries a kind plus a caller-facing message. Err holds the wrapped
// cause when the failure originated in the store.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func InvalidState(message string) *Error { return New(KindInvalidState, message) }
func Expired(message string) *Error      { return New(KindExpired, message) }
func AlreadyUsed(message string) *Error  { return New(KindAlreadyUsed, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func InvalidToken(message string) *Error { return New(KindInvalidToken, message) }
func Validation(message string) *Error   { return New(KindValidation, message) }

// KindOf returns the kind of err, or KindUnknown for non-taxonomy errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
