// Package sessiontest provides in-memory fakes of the session capabilities so
// managers, page objects and the runner can be tested without a browser.
package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/uiharness/pkg/session"
)

// ErrHandleClosed is returned by every Handle method once the handle was
// closed or killed.
var ErrHandleClosed = errors.New("target page, context or browser has been closed")

// Driver is a fake session.Driver. Each Open returns a new Handle built by
// Setup, if set.
type Driver struct {
	mu      sync.Mutex
	opens   int
	handles []*Handle

	// OpenErr, when set, is returned by Open.
	OpenErr error

	// Setup configures each new handle, e.g. to install click hooks.
	Setup func(h *Handle)
}

// Open returns a new fake handle.
func (d *Driver) Open(ctx context.Context) (session.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	h := NewHandle()
	if d.Setup != nil {
		d.Setup(h)
	}
	d.opens++
	d.handles = append(d.handles, h)
	return h, nil
}

// Opens returns the number of successful Open calls.
func (d *Driver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Handles returns every handle opened so far.
func (d *Driver) Handles() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Handle(nil), d.handles...)
}

// Last returns the most recently opened handle, or nil.
func (d *Driver) Last() *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

// Live returns the number of handles that are neither closed nor killed.
func (d *Driver) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, h := range d.handles {
		if !h.Closed() {
			n++
		}
	}
	return n
}

// Handle is a fake session.Handle holding a tiny page model: a URL, the set
// of visible selectors, element texts and filled values.
type Handle struct {
	mu      sync.Mutex
	url     string
	visible map[string]bool
	text    map[string]string
	values  map[string]string
	clicks  []string
	closed  bool
	killed  bool
	frozen  bool

	// OnNavigate runs after the URL changes.
	OnNavigate func(h *Handle, url string)

	// OnClick runs after a click on the given selector.
	OnClick map[string]func(h *Handle)

	// Missing makes Fill and Click fail for these selectors.
	Missing map[string]bool

	// Screenshots records Screenshot paths.
	Screenshots []string
}

// NewHandle returns a blank handle on about:blank.
func NewHandle() *Handle {
	return &Handle{
		url:     "about:blank",
		visible: make(map[string]bool),
		text:    make(map[string]string),
		values:  make(map[string]string),
		OnClick: make(map[string]func(h *Handle)),
		Missing: make(map[string]bool),
	}
}

func (h *Handle) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.closed || h.killed {
		return ErrHandleClosed
	}
	return nil
}

// Navigate sets the URL and clears the page model.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	h.mu.Lock()
	if err := h.check(ctx); err != nil {
		h.mu.Unlock()
		return err
	}
	h.url = url
	h.visible = make(map[string]bool)
	h.text = make(map[string]string)
	h.values = make(map[string]string)
	hook := h.OnNavigate
	h.mu.Unlock()

	if hook != nil {
		hook(h, url)
	}
	return nil
}

// Fill records value for selector.
func (h *Handle) Fill(ctx context.Context, selector, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(ctx); err != nil {
		return err
	}
	if h.Missing[selector] {
		return fmt.Errorf("fill failed: no element matches %q", selector)
	}
	h.values[selector] = value
	return nil
}

// Click records the click and runs the matching OnClick hook.
func (h *Handle) Click(ctx context.Context, selector string) error {
	h.mu.Lock()
	if err := h.check(ctx); err != nil {
		h.mu.Unlock()
		return err
	}
	if h.Missing[selector] {
		h.mu.Unlock()
		return fmt.Errorf("click failed: no element matches %q", selector)
	}
	h.clicks = append(h.clicks, selector)
	hook := h.OnClick[selector]
	h.mu.Unlock()

	if hook != nil {
		hook(h)
	}
	return nil
}

// Visible reports whether selector was made visible.
func (h *Handle) Visible(ctx context.Context, selector string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(ctx); err != nil {
		return false, err
	}
	return h.visible[selector], nil
}

// Text returns the text set for selector.
func (h *Handle) Text(ctx context.Context, selector string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(ctx); err != nil {
		return "", err
	}
	text, ok := h.text[selector]
	if !ok {
		return "", fmt.Errorf("no element matches %q", selector)
	}
	return text, nil
}

// WaitFor returns immediately when selector is visible and otherwise blocks
// until ctx is done. The fake page never changes on its own.
func (h *Handle) WaitFor(ctx context.Context, selector string) error {
	visible, err := h.Visible(ctx, selector)
	if err != nil {
		return err
	}
	if visible {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// URL returns the current URL.
func (h *Handle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Ping fails once the handle is closed or killed.
func (h *Handle) Ping(ctx context.Context) error {
	h.mu.Lock()
	frozen := h.frozen
	err := h.check(ctx)
	h.mu.Unlock()

	if err != nil || !frozen {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// Freeze makes Ping block until its context is done, like a browser that
// stopped answering.
func (h *Handle) Freeze() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frozen = true
}

// Close marks the handle closed. Closing twice is fine.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Screenshot records path.
func (h *Handle) Screenshot(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.killed {
		return ErrHandleClosed
	}
	h.Screenshots = append(h.Screenshots, path)
	return nil
}

// Snapshot returns a minimal description of the page model.
func (h *Handle) Snapshot(maxLength int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.killed {
		return "", ErrHandleClosed
	}
	s := fmt.Sprintf("<page url=%q>", h.url)
	for sel, text := range h.text {
		s += fmt.Sprintf("<el sel=%q>%s</el>", sel, text)
	}
	if maxLength > 0 && len(s) > maxLength {
		s = s[:maxLength]
	}
	return s, nil
}

// Kill simulates a crashed or disconnected browser.
func (h *Handle) Kill() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
}

// Closed reports whether the handle was closed or killed.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed || h.killed
}

// Show makes selector visible with the given text.
func (h *Handle) Show(selector, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visible[selector] = true
	h.text[selector] = text
}

// Hide makes selector invisible.
func (h *Handle) Hide(selector string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.visible, selector)
}

// SetURL changes the URL without clearing the page model, like a
// client-side route change.
func (h *Handle) SetURL(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.url = url
}

// Value returns what was filled into selector.
func (h *Handle) Value(selector string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.values[selector]
}

// Clicks returns the clicked selectors in order.
func (h *Handle) Clicks() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.clicks...)
}
