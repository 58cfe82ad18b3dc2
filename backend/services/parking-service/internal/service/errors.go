package service

import "fmt"

// Kind classifies service failures for the transport layer.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConfig       Kind = "config"
)

// Error is a classified service failure with a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works for every message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation   = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrConflict     = &Error{Kind: KindConflict, Message: "conflict"}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrConfig       = &Error{Kind: KindConfig, Message: "configuration error"}
)

func newError(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
