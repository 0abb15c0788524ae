// Package session manages authenticated browser sessions for UI test workers.
//
// A Manager owns at most one Session for a single worker. The first Acquire
// opens a browser handle, runs the login flow and waits for the post-login
// marker. Later Acquire calls reuse that Session until it goes stale, at which
// point it is replaced transparently.
//
// # Session Lifecycle
//
//	Unestablished -> Establishing -> Authenticated -> {Stale, Invalidated}
//	              -> Establishing -> ... -> Destroyed (Release)
//
// Establishing falls back to Unestablished when login fails. A Session is
// stale when it is older than the caller's maxAge or when the health probe
// fails (the handle stopped responding or the page is back on the login form).
//
// # Capabilities
//
// The package never talks to a browser directly. It consumes three small
// interfaces:
//
//   - Driver opens a fresh Handle
//   - Handle is the navigate/fill/click/wait surface of one browser context
//   - LoginFlow knows how to submit credentials and recognise the marker
//
// pkg/browser implements Driver and Handle with Playwright, pkg/pages
// implements LoginFlow, and pkg/session/sessiontest provides in-memory fakes.
//
// # Parallel workers
//
// Pool maps worker identifiers to Managers. Each worker goroutine takes its
// own Manager and never shares the underlying Handle.
//
// # Example Usage
//
//	pool := session.NewPool(driver, loginPage, session.WithNotifier(recorder))
//	mgr, err := pool.ForWorker("gw0")
//	sess, err := mgr.Acquire(ctx, cred, 30*time.Minute)
//	// drive sess.Handle ...
//	defer pool.ReleaseAll()
package session
