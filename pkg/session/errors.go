package session

import (
	"errors"
	"fmt"
)

// Kind classifies session errors.
type Kind string

const (
	// KindConfiguration means credential or config input is malformed. Never retried.
	KindConfiguration Kind = "configuration"

	// KindLoginFailure means the login sequence did not reach the marker or
	// the application rejected the credential.
	KindLoginFailure Kind = "login_failure"

	// KindSessionUnavailable means the underlying handle died between uses.
	KindSessionUnavailable Kind = "session_unavailable"
)

// Sentinel errors for errors.Is matching against an *Error of the same kind.
var (
	ErrConfiguration      = &Error{Kind: KindConfiguration, Message: "configuration error"}
	ErrLoginFailure       = &Error{Kind: KindLoginFailure, Message: "login failure"}
	ErrSessionUnavailable = &Error{Kind: KindSessionUnavailable, Message: "session unavailable"}
)

// Error is a classified session error.
type Error struct {
	Kind     Kind
	Op       string
	WorkerID string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.WorkerID != "" {
		msg = fmt.Sprintf("[%s] %s", e.WorkerID, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, ErrLoginFailure) matches every login failure.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func configError(op, message string) error {
	return &Error{Kind: KindConfiguration, Op: op, Message: message}
}

// Rejection is returned by a LoginFlow when the application shows an error
// message matching a known failure pattern.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("login rejected: %s", r.Message)
}
