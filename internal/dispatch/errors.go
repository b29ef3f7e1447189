package dispatch

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error unwraps to exactly one of them, so callers can use
// errors.Is(err, dispatch.ErrOutOfRange) and so on.
var (
	ErrNotFound          = errors.New("not found")
	ErrNotAvailable      = errors.New("inspector not available")
	ErrAlreadyAssigned   = errors.New("request already assigned")
	ErrOutOfRange        = errors.New("inspector out of range")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidInput      = errors.New("invalid input")
)

// Error is a recoverable domain failure. Fields carries the structured detail a
// dispatcher UI needs to explain the rejection (distance, limit, current status).
type Error struct {
	Kind    error
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, fields map[string]any, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Fields: fields}
}

func notFound(entity string, id int64) *Error {
	return newError(ErrNotFound, map[string]any{"entity": entity, "id": id}, "%s %d not found", entity, id)
}

func invalidInput(format string, args ...any) *Error {
	return newError(ErrInvalidInput, nil, format, args...)
}

// KindName returns a stable snake_case name for err's kind, or "internal".
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotAvailable):
		return "not_available"
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}
	return "internal"
}

// FieldsOf returns the structured detail of a domain error, or nil.
func FieldsOf(err error) map[string]any {
	var de *Error
	if errors.As(err, &de) {
		return de.Fields
	}
	return nil
}
