// Package browser drives real browsers through Playwright.
//
// A Launcher starts the Playwright driver once per process and opens one
// isolated browser per Page. Pages implement session.Handle, so a
// session.Manager can log in through them without knowing about Playwright.
//
// # Timeouts
//
// Every Page operation takes a context. The time left before the context
// deadline becomes the Playwright timeout for that call, capped at
// Options.Timeout. WaitFor and Ping additionally return as soon as the
// context is done.
//
// # Failure evidence
//
// Page also implements session.Screenshotter and session.Snapshotter. A
// snapshot is a short outline of the page markup with scripts, styles and
// hidden inputs removed and password values redacted, suitable for storing
// in a run report.
//
// # Pipelines
//
// PipelineArgs holds the chromium switches needed on shared CI agents. The
// config package appends them when RUNNING_IN_PIPELINE is set.
package browser
