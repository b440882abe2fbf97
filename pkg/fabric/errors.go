package fabric

import (
	"context"
	"errors"
	"fmt"
)

const (
	ErrorTransport = "transport"
	ErrorNotFound  = "not_found"
	ErrorMalformed = "malformed"
)

var (
	ErrTransport = &Error{Category: ErrorTransport}
	ErrNotFound  = &Error{Category: ErrorNotFound}
	ErrMalformed = &Error{Category: ErrorMalformed}
)

// Error is a categorized relay failure.
type Error struct {
	Category string
	Op       string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Category
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the category sentinels, so errors.Is(err, ErrNotFound) works for
// any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Detail == "" && t.Err == nil && t.Category == e.Category
}

// Transport wraps err as a transport failure of op. Context errors pass
// through unchanged.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &Error{Category: ErrorTransport, Op: op, Err: err}
}

// NotFound reports an unknown or withdrawn session.
func NotFound(sessionID string) error {
	return &Error{Category: ErrorNotFound, Detail: fmt.Sprintf("session %q", sessionID)}
}

// Malformed reports a payload that could not be interpreted.
func Malformed(detail string, err error) error {
	return &Error{Category: ErrorMalformed, Detail: detail, Err: err}
}

// CategoryFromError returns the category for err, or "" when it has none.
func CategoryFromError(err error) string {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}
	return ""
}
