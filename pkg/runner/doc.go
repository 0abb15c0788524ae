// Package runner schedules UI scenarios across parallel workers.
//
// Each worker is named gw0..gwN-1 and owns exactly one session manager taken
// from a session.Pool. Scenarios pulled by a worker run one after another, so
// a login made for the first scenario is reused by the following ones until
// it expires, fails its health probe, or a scenario asks for a fresh one.
//
// A scenario signals how it left the page through its return value: nil, an
// error (failure), ErrDirty (passed, but the session must not be reused) or
// ErrSkip. After a failure the runner saves a screenshot and a page snapshot
// when the handle supports it, then invalidates the session.
//
// Every worker's session is released when Run returns.
package runner
