package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies expected, caller-recoverable failures.
type ErrorKind string

const (
	KindSessionNotFound   ErrorKind = "SESSION_NOT_FOUND"
	KindSessionExpired    ErrorKind = "SESSION_EXPIRED"
	KindChannelNotFound   ErrorKind = "CHANNEL_NOT_FOUND"
	KindChannelExists     ErrorKind = "CHANNEL_EXISTS"
	KindAlreadySubscribed ErrorKind = "ALREADY_SUBSCRIBED"
	KindNotSubscribed     ErrorKind = "NOT_SUBSCRIBED"
	KindNicknameTaken     ErrorKind = "NICKNAME_TAKEN"
	KindNotInChannel      ErrorKind = "NOT_IN_CHANNEL"
	KindRateLimitExceeded ErrorKind = "RATE_LIMIT_EXCEEDED"
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindDatabase          ErrorKind = "DATABASE_ERROR"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrSessionNotFound   = &Error{Kind: KindSessionNotFound}
	ErrSessionExpired    = &Error{Kind: KindSessionExpired}
	ErrChannelNotFound   = &Error{Kind: KindChannelNotFound}
	ErrChannelExists     = &Error{Kind: KindChannelExists}
	ErrAlreadySubscribed = &Error{Kind: KindAlreadySubscribed}
	ErrNotSubscribed     = &Error{Kind: KindNotSubscribed}
	ErrNicknameTaken     = &Error{Kind: KindNicknameTaken}
	ErrNotInChannel      = &Error{Kind: KindNotInChannel}
	ErrRateLimitExceeded = &Error{Kind: KindRateLimitExceeded}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrDatabase          = &Error{Kind: KindDatabase}
)

// Error is a classified failure carrying a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// DatabaseError wraps an unclassified store failure.
func DatabaseError(op string, err error) *Error {
	return &Error{Kind: KindDatabase, Message: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindDatabase for unclassified errors.
// Returns "" for a nil error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDatabase
}
