package workflow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed transition.
type ErrorKind string

const (
	Unauthorized        ErrorKind = "unauthorized"
	InvalidTransition   ErrorKind = "invalid_transition"
	MissingRecipient    ErrorKind = "missing_recipient"
	PersistenceFailure  ErrorKind = "persistence_failure"
	NotificationFailure ErrorKind = "notification_failure"
	StaleVersion        ErrorKind = "stale_version"
	NotFound            ErrorKind = "not_found"
)

// Error is the failure form of every workflow operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can test against the Err* sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized        = &Error{Kind: Unauthorized}
	ErrInvalidTransition   = &Error{Kind: InvalidTransition}
	ErrMissingRecipient    = &Error{Kind: MissingRecipient}
	ErrPersistenceFailure  = &Error{Kind: PersistenceFailure}
	ErrNotificationFailure = &Error{Kind: NotificationFailure}
	ErrStaleVersion        = &Error{Kind: StaleVersion}
	ErrNotFound            = &Error{Kind: NotFound}
)

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the workflow kind carried by err, or "" if err is not a workflow error.
func KindOf(err error) ErrorKind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// MessageOf returns the display message of a workflow error.
func MessageOf(err error) string {
	var we *Error
	if errors.As(err, &we) {
		if we.Message != "" {
			return we.Message
		}
		if we.Err != nil {
			return we.Err.Error()
		}
		return string(we.Kind)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
