package domain

import (
	"errors"
	"fmt"
)

// Kind categorises failures so callers can react without string matching.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindProcessing Kind = "processing"
)

// Error is the error type returned by the reconciliation core.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind using the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrProcessing = &Error{Kind: KindProcessing}
)

func NewValidationError(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

func NewNotFoundError(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: msg}
}

func NewConflictError(op, msg string) error {
	return &Error{Kind: KindConflict, Op: op, Message: msg}
}

// NewProcessingError wraps an unexpected failure that an operator cannot fix.
func NewProcessingError(op string, err error) error {
	return &Error{Kind: KindProcessing, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindProcessing for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProcessing
}
