package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Default bounds for blocking manager operations.
const (
	DefaultEstablishTimeout = 30 * time.Second
	DefaultHealthTimeout    = 5 * time.Second
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	establishTimeout time.Duration
	healthTimeout    time.Duration
	healthProbe      bool
	notifier         Notifier
	now              func() time.Time
}

func defaultOptions() options {
	return options{
		establishTimeout: DefaultEstablishTimeout,
		healthTimeout:    DefaultHealthTimeout,
		healthProbe:      true,
		notifier:         discard{},
		now:              time.Now,
	}
}

// WithEstablishTimeout bounds the whole login sequence, including opening
// the handle and waiting for the marker.
func WithEstablishTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.establishTimeout = d
		}
	}
}

// WithHealthTimeout bounds a single health probe.
func WithHealthTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.healthTimeout = d
		}
	}
}

// WithHealthProbe controls whether Acquire probes a reusable session before
// handing it out. Enabled by default.
func WithHealthProbe(enabled bool) Option {
	return func(o *options) {
		o.healthProbe = enabled
	}
}

// WithNotifier sets the receiver of lifecycle events.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Manager owns the single Session of one worker.
//
// Calls from one worker are expected to be sequential; the mutex only keeps
// the state consistent if that expectation is violated.
type Manager struct {
	mu       sync.Mutex
	workerID string
	driver   Driver
	flow     LoginFlow
	opts     options

	state          State
	current        *Session
	establishments int

	// checkedOut is the last time a Pool handed the manager out.
	checkedOut time.Time
}

// NewManager creates a manager for workerID. No browser is opened until the
// first Acquire.
func NewManager(workerID string, driver Driver, flow LoginFlow, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager{
		workerID: workerID,
		driver:   driver,
		flow:     flow,
		opts:     o,
		state:    StateUnestablished,
	}
}

// Acquire returns an authenticated Session for cred. The current session is
// reused when it was established with the same credential, is younger than
// maxAge and passes the health probe; otherwise a new one is established.
// A maxAge of zero or less disables the age limit.
func (m *Manager) Acquire(ctx context.Context, cred Credential, maxAge time.Duration) (*Session, error) {
	if err := cred.Validate(); err != nil {
		return nil, m.tag(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDestroyed {
		return nil, m.released("acquire")
	}
	// A caller that already gave up must not cost the worker its session.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var unavailable error
	if s := m.current; s != nil && s.authenticated {
		now := m.opts.now()
		switch {
		case s.credential != cred:
			m.state = StateStale
		case maxAge > 0 && s.Age(now) >= maxAge:
			m.state = StateStale
		case m.opts.healthProbe && !m.healthCheckLocked(ctx):
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			m.state = StateStale
			unavailable = &Error{
				Kind:     KindSessionUnavailable,
				Op:       "acquire",
				WorkerID: m.workerID,
				Message:  "health check failed",
			}
		default:
			s.LastUsedAt = now
			m.notify(EventReused, fmt.Sprintf("age=%s", s.Age(now).Round(time.Millisecond)))
			return s, nil
		}
	}

	s, err := m.establishLocked(ctx, cred)
	if err != nil {
		if unavailable != nil {
			return nil, errors.Join(unavailable, err)
		}
		return nil, err
	}
	return s, nil
}

// Establish unconditionally replaces the current session with a freshly
// logged-in one. It never retries.
func (m *Manager) Establish(ctx context.Context, cred Credential) (*Session, error) {
	if err := cred.Validate(); err != nil {
		return nil, m.tag(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDestroyed {
		return nil, m.released("establish")
	}
	return m.establishLocked(ctx, cred)
}

func (m *Manager) establishLocked(ctx context.Context, cred Credential) (*Session, error) {
	m.closeCurrentLocked()
	m.state = StateEstablishing

	ectx, cancel := context.WithTimeout(ctx, m.opts.establishTimeout)
	defer cancel()

	h, err := m.driver.Open(ectx)
	if err != nil {
		m.state = StateUnestablished
		m.notify(EventLoginFailed, err.Error())
		return nil, &Error{
			Kind:     KindSessionUnavailable,
			Op:       "establish",
			WorkerID: m.workerID,
			Message:  "failed to open browser handle",
			Err:      err,
		}
	}

	if err := m.flow.Submit(ectx, h, cred); err != nil {
		return nil, m.loginFailedLocked(h, "failed to submit credentials", err)
	}
	if err := m.flow.AwaitMarker(ectx, h); err != nil {
		return nil, m.loginFailedLocked(h, "post-login marker not observed", err)
	}

	now := m.opts.now()
	s := &Session{
		WorkerID:      m.workerID,
		Handle:        h,
		CreatedAt:     now,
		LastUsedAt:    now,
		credential:    cred,
		authenticated: true,
	}
	m.current = s
	m.state = StateAuthenticated
	m.establishments++
	m.notify(EventEstablished, cred.String())
	return s, nil
}

// loginFailedLocked discards the partially initialised handle and returns
// the manager to Unestablished.
func (m *Manager) loginFailedLocked(h Handle, message string, cause error) error {
	_ = h.Close()
	m.current = nil
	m.state = StateUnestablished

	var rejection *Rejection
	if errors.As(cause, &rejection) {
		message = rejection.Message
	}
	m.notify(EventLoginFailed, message)

	return &Error{
		Kind:     KindLoginFailure,
		Op:       "establish",
		WorkerID: m.workerID,
		Message:  message,
		Err:      cause,
	}
}

// Invalidate marks the current session as not authenticated without closing
// its handle. The next Acquire establishes a new session.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.authenticated {
		return
	}
	m.current.authenticated = false
	m.state = StateInvalidated
	m.notify(EventInvalidated, "")
}

// Release closes the handle and forgets the session. It is idempotent and a
// no-op when no session is held. The manager cannot be used afterwards.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked("")
}

func (m *Manager) releaseLocked(detail string) error {
	if m.state == StateDestroyed {
		return nil
	}
	m.state = StateDestroyed

	if m.current == nil {
		return nil
	}

	var err error
	if m.current.Handle != nil {
		if closeErr := m.current.Handle.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close browser handle: %w", closeErr)
		}
	}
	m.current = nil
	m.notify(EventReleased, detail)
	return err
}

// checkout records that the manager was handed out. It reports false once
// the manager has been released.
func (m *Manager) checkout() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDestroyed {
		return false
	}
	m.checkedOut = m.opts.now()
	return true
}

// releaseIfIdle releases the manager when it holds a session that has been
// neither handed out nor acquired since cutoff. The check and the release
// happen under one lock so a concurrent checkout either wins or sees the
// manager destroyed.
func (m *Manager) releaseIfIdle(cutoff time.Time) (WorkerInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDestroyed || m.current == nil {
		return WorkerInfo{}, false, nil
	}
	last := m.current.LastUsedAt
	if m.checkedOut.After(last) {
		last = m.checkedOut
	}
	if !last.Before(cutoff) {
		return WorkerInfo{}, false, nil
	}

	info := m.infoLocked()
	err := m.releaseLocked(fmt.Sprintf("idle since %s", last.Format(time.RFC3339)))
	info.State = m.state
	return info, true, err
}

// HealthCheck probes the current session without waiting for maxAge: the
// handle must respond and must not be showing the login page.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthCheckLocked(ctx)
}

func (m *Manager) healthCheckLocked(ctx context.Context) bool {
	if m.current == nil || m.current.Handle == nil {
		return false
	}

	hctx, cancel := context.WithTimeout(ctx, m.opts.healthTimeout)
	defer cancel()

	h := m.current.Handle
	if err := h.Ping(hctx); err != nil {
		if ctx.Err() == nil {
			m.notify(EventHealthCheckFailed, fmt.Sprintf("handle not responding: %v", err))
		}
		return false
	}

	onLogin, err := m.flow.OnLoginPage(hctx, h)
	if err != nil {
		if ctx.Err() == nil {
			m.notify(EventHealthCheckFailed, fmt.Sprintf("login page check failed: %v", err))
		}
		return false
	}
	if onLogin {
		m.notify(EventHealthCheckFailed, "back on login page: "+h.URL())
		return false
	}
	return true
}

// closeCurrentLocked tears down the previous handle before a new one is
// opened, so a worker never holds two live handles.
func (m *Manager) closeCurrentLocked() {
	if m.current == nil {
		return
	}
	if m.current.Handle != nil {
		_ = m.current.Handle.Close()
	}
	m.current = nil
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the held session, authenticated or not, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// WorkerID returns the worker this manager belongs to.
func (m *Manager) WorkerID() string {
	return m.workerID
}

// Establishments returns how many sessions have been successfully established.
func (m *Manager) Establishments() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.establishments
}

func (m *Manager) info() WorkerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoLocked()
}

func (m *Manager) infoLocked() WorkerInfo {
	info := WorkerInfo{
		WorkerID:       m.workerID,
		State:          m.state,
		Establishments: m.establishments,
	}
	if m.current != nil {
		info.CreatedAt = m.current.CreatedAt
		info.LastUsedAt = m.current.LastUsedAt
		info.CurrentURL = m.current.Handle.URL()
	}
	return info
}

func (m *Manager) notify(kind EventKind, detail string) {
	m.opts.notifier.Notify(Event{
		Kind:     kind,
		WorkerID: m.workerID,
		At:       m.opts.now(),
		Detail:   detail,
	})
}

func (m *Manager) released(op string) error {
	return &Error{
		Kind:     KindSessionUnavailable,
		Op:       op,
		WorkerID: m.workerID,
		Message:  "manager already released",
	}
}

func (m *Manager) tag(err error) error {
	var se *Error
	if errors.As(err, &se) && se.WorkerID == "" {
		cp := *se
		cp.WorkerID = m.workerID
		return &cp
	}
	return err
}
