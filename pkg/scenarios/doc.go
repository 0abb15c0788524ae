// Package scenarios holds the login and home page scenarios run by uiharness.
//
// Authenticated scenarios share the worker's session. Negative login cases
// run on an anonymous handle so a rejected login never tears down the
// worker's session.
package scenarios
