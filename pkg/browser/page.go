package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrPageClosed is returned by operations on a closed Page.
var ErrPageClosed = errors.New("page closed")

// Page is one browser, context and page opened by a Launcher. It implements
// session.Handle, session.Screenshotter and session.Snapshotter.
type Page struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout float64

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
	onClose   func()
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(timeoutMS(ctx, p.timeout)),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", ctxErr(ctx, err))
	}
	return nil
}

// Fill replaces the value of the element matching selector.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(timeoutMS(ctx, p.timeout)),
	})
	if err != nil {
		return fmt.Errorf("fill failed: %w", ctxErr(ctx, err))
	}
	return nil
}

// Click clicks the element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(timeoutMS(ctx, p.timeout)),
	})
	if err != nil {
		return fmt.Errorf("click failed: %w", ctxErr(ctx, err))
	}
	return nil
}

// Visible reports whether the first element matching selector is visible
// right now.
func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	if err := p.usable(ctx); err != nil {
		return false, err
	}
	visible, err := p.page.Locator(selector).First().IsVisible()
	if err != nil {
		return false, fmt.Errorf("visibility check failed: %w", err)
	}
	return visible, nil
}

// Text returns the text content of the first element matching selector.
func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	if err := p.usable(ctx); err != nil {
		return "", err
	}
	text, err := p.page.Locator(selector).First().TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(timeoutMS(ctx, p.timeout)),
	})
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", ctxErr(ctx, err))
	}
	return text, nil
}

// WaitFor blocks until an element matching selector is visible.
func (p *Page) WaitFor(ctx context.Context, selector string) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	err := withContext(ctx, func() error {
		_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(timeoutMS(ctx, p.timeout)),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("wait failed: %w", ctxErr(ctx, err))
	}
	return nil
}

// URL returns the URL of the current document, or "" once closed.
func (p *Page) URL() string {
	if p.isClosed() || p.page.IsClosed() {
		return ""
	}
	return p.page.URL()
}

// Ping checks that the browser is connected and the page still evaluates
// script.
func (p *Page) Ping(ctx context.Context) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	if !p.browser.IsConnected() {
		return fmt.Errorf("browser disconnected")
	}
	if p.page.IsClosed() {
		return ErrPageClosed
	}
	err := withContext(ctx, func() error {
		_, err := p.page.Evaluate(pingScript)
		return err
	})
	if err != nil {
		return fmt.Errorf("page not responding: %w", err)
	}
	return nil
}

// Screenshot writes a full-page PNG to path, creating parent directories.
func (p *Page) Screenshot(path string) error {
	if p.isClosed() {
		return ErrPageClosed
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

// Snapshot returns a cleaned outline of the current page, at most maxLength
// bytes long. Zero uses DefaultSnapshotLength.
func (p *Page) Snapshot(maxLength int) (string, error) {
	if p.isClosed() {
		return "", ErrPageClosed
	}
	if maxLength == 0 {
		maxLength = DefaultSnapshotLength
	}
	content, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	snap, err := snapshotHTML(content, maxLength)
	if err != nil {
		return "", err
	}
	return snap.String(), nil
}

// Close releases the page, its context and its browser. It is safe to call
// more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		var errs []error
		if err := p.page.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := p.context.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := p.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			p.closeErr = fmt.Errorf("errors closing page: %w", errors.Join(errs...))
		}
		if p.onClose != nil {
			p.onClose()
		}
	})
	return p.closeErr
}

func (p *Page) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.isClosed() {
		return ErrPageClosed
	}
	return nil
}

// timeoutMS converts the time left before ctx's deadline into a Playwright
// timeout, falling back to the page default when ctx has none.
func timeoutMS(ctx context.Context, fallback float64) float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < minOperationTimeoutMS {
		return minOperationTimeoutMS
	}
	if fallback > 0 && ms > fallback {
		return fallback
	}
	return ms
}

// withContext runs fn and returns early with ctx's error if ctx is done
// first. fn keeps running in the background until Playwright gives up.
func withContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ctxErr prefers ctx's error over a Playwright timeout caused by the same
// deadline.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}
