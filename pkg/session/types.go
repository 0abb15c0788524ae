package session

import (
	"context"
	"strings"
	"time"
)

// Credential identifies the user a Session logs in as. It is a value type;
// the manager never mutates it.
type Credential struct {
	Email       string `yaml:"email" json:"email"`
	Password    string `yaml:"password" json:"-"`
	AcceptTerms bool   `yaml:"accept_terms" json:"accept_terms"`
}

// Validate reports a configuration error when email or password is empty.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return configError("validate credential", "email is required")
	}
	if strings.TrimSpace(c.Password) == "" {
		return configError("validate credential", "password is required")
	}
	return nil
}

// String returns the credential without its password.
func (c Credential) String() string {
	return c.Email
}

// State is a position in the session lifecycle.
type State int

const (
	StateUnestablished State = iota
	StateEstablishing
	StateAuthenticated
	StateStale
	StateInvalidated
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUnestablished:
		return "unestablished"
	case StateEstablishing:
		return "establishing"
	case StateAuthenticated:
		return "authenticated"
	case StateStale:
		return "stale"
	case StateInvalidated:
		return "invalidated"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Session represents one authenticated browser context owned by a worker.
type Session struct {
	// WorkerID is the worker that owns this session
	WorkerID string

	// Handle is the underlying browser automation handle
	Handle Handle

	// CreatedAt is when the login sequence completed
	CreatedAt time.Time

	// LastUsedAt is the last time the session was handed out
	LastUsedAt time.Time

	credential    Credential
	authenticated bool
}

// Authenticated reports whether the post-login marker was observed and the
// session has not been invalidated since.
func (s *Session) Authenticated() bool {
	return s != nil && s.authenticated
}

// Credential returns the credential the session was established with.
func (s *Session) Credential() Credential {
	return s.credential
}

// Age returns how long ago the session was established.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Driver opens browser automation handles.
type Driver interface {
	Open(ctx context.Context) (Handle, error)
}

// Handle is the control surface of one browser context. Every blocking call
// must return once ctx is done.
type Handle interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error

	// Visible reports whether an element matching selector is currently visible.
	// It does not wait.
	Visible(ctx context.Context, selector string) (bool, error)

	// Text returns the text content of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)

	// WaitFor blocks until an element matching selector is visible or ctx is done.
	WaitFor(ctx context.Context, selector string) error

	URL() string

	// Ping confirms the handle still responds.
	Ping(ctx context.Context) error

	Close() error
}

// Screenshotter is implemented by handles that can capture the page to a file.
type Screenshotter interface {
	Screenshot(path string) error
}

// Snapshotter is implemented by handles that can return a cleaned copy of the
// current page markup.
type Snapshotter interface {
	Snapshot(maxLength int) (string, error)
}

// LoginFlow performs the application-specific login steps on a handle.
type LoginFlow interface {
	// Submit navigates to the login entry point and submits cred.
	Submit(ctx context.Context, h Handle, cred Credential) error

	// AwaitMarker blocks until the post-login marker is observed. It returns a
	// *Rejection when the page reports a known failure, or ctx's error when
	// the deadline passes first.
	AwaitMarker(ctx context.Context, h Handle) error

	// OnLoginPage reports whether the handle is showing the login form.
	OnLoginPage(ctx context.Context, h Handle) (bool, error)
}
