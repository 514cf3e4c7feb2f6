package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for callers. Every user-visible error in the
// backend carries one of these plus a human-readable sentence.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidTransition Kind = "invalid_transition"
	KindLLMUnavailable    Kind = "llm_unavailable"
	KindParseFailure      Kind = "parse_failure"
	KindStorageConflict   Kind = "storage_conflict"
	KindCancelled         Kind = "cancelled"
	KindInternal          Kind = "internal"
)

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

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func InvalidInput(format string, args ...interface{}) *Error {
	return New(KindInvalidInput, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return New(KindInvalidTransition, format, args...)
}

func LLMUnavailable(err error, format string, args ...interface{}) *Error {
	return Wrap(KindLLMUnavailable, err, format, args...)
}

func ParseFailure(err error, format string, args ...interface{}) *Error {
	return Wrap(KindParseFailure, err, format, args...)
}

func StorageConflict(err error, format string, args ...interface{}) *Error {
	return Wrap(KindStorageConflict, err, format, args...)
}

// KindOf extracts the Kind from any error in the chain. Context
// cancellation and deadline errors map to KindCancelled; everything
// else without an *Error maps to KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
