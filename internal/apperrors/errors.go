package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry and HTTP mapping.
type Kind string

const (
	KindPrecondition Kind = "precondition"
	KindExhausted    Kind = "exhausted"
	KindTransient    Kind = "transient"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
)

// Error is the engine's typed error.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind and Message so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// HTTPStatus maps the kind to a response code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindPrecondition:
		return http.StatusBadRequest
	case KindExhausted, KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

var (
	ErrProfileIncomplete = New(KindPrecondition, "profile incomplete")
	ErrNoSuitableMatches = New(KindExhausted, "no suitable matches found")
	ErrRequestNotFound   = New(KindNotFound, "match request not found")
	ErrMatchNotFound     = New(KindNotFound, "match not found")
	ErrProfileNotFound   = New(KindPrecondition, "profile not found")
	ErrRequestNotQueued  = New(KindConflict, "match request is no longer queued")
	ErrRequestInProgress = New(KindConflict, "match request already in progress")
	ErrNotRequestOwner   = New(KindForbidden, "match request belongs to another user")
	ErrPoolUnavailable   = New(KindTransient, "candidate pool unavailable")
	ErrDuplicatePair     = New(KindConflict, "a match already exists for this pair")
)

// KindOf returns the kind of the first *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether a worker should re-queue after err. Untyped errors
// are infrastructure failures and are retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindPrecondition, KindExhausted, KindNotFound, KindForbidden, KindConflict:
		return false
	}
	return true
}

// HTTPStatus returns the status for err, defaulting to 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
