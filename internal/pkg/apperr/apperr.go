// Package apperr is the error taxonomy shared by every engine operation.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an engine failure by what the caller should do about it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindForbidden
	KindExhausted
	KindAlreadyTerminal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindExhausted:
		return "exhausted"
	case KindAlreadyTerminal:
		return "already_terminal"
	default:
		return "internal"
	}
}

// Soft kinds are informational: the caller refreshes or ignores, nothing is broken.
func (k Kind) Soft() bool {
	return k == KindConflict || k == KindAlreadyTerminal
}

// Sentinels for errors.Is.
var (
	ErrValidation      = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "conflict"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrExhausted       = &Error{Kind: KindExhausted, Message: "exhausted"}
	ErrAlreadyTerminal = &Error{Kind: KindAlreadyTerminal, Message: "already terminal"}
)

// Error is a classified engine error. IDs lists the offending documents, if any.
type Error struct {
	Kind    Kind
	Message string
	IDs     []string
}

func (e *Error) Error() string {
	if len(e.IDs) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.IDs, ", "))
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
// for every conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, format, args...)
}

func Exhausted(format string, args ...interface{}) *Error {
	return newf(KindExhausted, format, args...)
}

func AlreadyTerminal(format string, args ...interface{}) *Error {
	return newf(KindAlreadyTerminal, format, args...)
}

// WithIDs returns a copy of e carrying ids.
func (e *Error) WithIDs(ids ...string) *Error {
	cp := *e
	cp.IDs = append([]string(nil), ids...)
	return &cp
}

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IDsOf returns the document ids attached to err, if any.
func IDsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.IDs
	}
	return nil
}
