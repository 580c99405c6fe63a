package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure so transport layers can map it
// to a status code without inspecting message text.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindStateConflict
	KindNotFound
	KindInsufficientCredit
	KindAuthorization
)

// Error carries a user-facing message together with its Kind. Messages are
// Spanish, they are returned verbatim to API clients.
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

// New builds an Error with the given kind and message.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err, or a generic fallback
// for untyped errors so internals never leak to clients.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "error interno del servidor"
}
