package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/uiharness/pkg/dataset"
	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/session"
)

// ErrDirty is returned (possibly wrapped) by a scenario that passed but left
// the page in a state the next scenario must not inherit. The runner
// invalidates the worker's session afterwards.
var ErrDirty = errors.New("session left dirty")

// ErrSkip marks a scenario as skipped.
var ErrSkip = errors.New("scenario skipped")

// Scenario is one UI test case.
type Scenario struct {
	// Name is a slash separated identifier such as "login/valid_user"
	Name string

	// Credential is the data key to log in with. Empty means dataset.ValidUser.
	Credential string

	// NoSession scenarios get no authenticated session. They can drive a
	// logged-out browser through Env.Anonymous.
	NoSession bool

	// Fresh forces a new login before the scenario runs.
	Fresh bool

	Run func(ctx context.Context, env *Env) error
}

func (s Scenario) credentialKey() string {
	if s.Credential == "" {
		return dataset.ValidUser
	}
	return s.Credential
}

// Env is what a scenario sees while it runs.
type Env struct {
	WorkerID string

	// Manager is the worker's session manager.
	Manager *session.Manager

	// Session is the authenticated session, nil for NoSession scenarios.
	Session *session.Session

	Credentials dataset.Source
	MaxAge      time.Duration
	Log         *logging.Logger

	driver    session.Driver
	mu        sync.Mutex
	anonymous session.Handle
}

// Handle returns the authenticated session's handle, or nil.
func (e *Env) Handle() session.Handle {
	if e.Session == nil {
		return nil
	}
	return e.Session.Handle
}

// Credential resolves a credential key.
func (e *Env) Credential(key string) (session.Credential, error) {
	if e.Credentials == nil {
		return session.Credential{}, fmt.Errorf("no credential source configured")
	}
	return e.Credentials.Credential(key)
}

// Anonymous returns a browser handle that has never logged in. It is opened
// on first use and closed when the scenario ends.
func (e *Env) Anonymous(ctx context.Context) (session.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.anonymous != nil {
		return e.anonymous, nil
	}
	if e.driver == nil {
		return nil, fmt.Errorf("no driver configured for anonymous handles")
	}
	h, err := e.driver.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open anonymous handle: %w", err)
	}
	e.anonymous = h
	return h, nil
}

// captureHandle is the handle to screenshot after a failure.
func (e *Env) captureHandle() session.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.anonymous != nil {
		return e.anonymous
	}
	return e.Handle()
}

func (e *Env) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.anonymous == nil {
		return nil
	}
	err := e.anonymous.Close()
	e.anonymous = nil
	return err
}
