package browser

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uiharness/pkg/session"
)

// Launcher starts Playwright once and opens an isolated browser per handle.
// It implements session.Driver.
type Launcher struct {
	mu          sync.Mutex
	opts        Options
	playwright  *playwright.Playwright
	pages       map[*Page]struct{}
	initialized bool
}

// NewLauncher creates a launcher with the given options. Initialize must be
// called before Open.
func NewLauncher(opts Options) (*Launcher, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Launcher{
		opts:  opts,
		pages: make(map[*Page]struct{}),
	}, nil
}

// Options returns the effective launch options.
func (l *Launcher) Options() Options {
	return l.opts
}

// Initialize starts the Playwright driver, installing browsers first when
// requested.
func (l *Launcher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	// Discard driver output so it does not interleave with the report
	opts := &playwright.RunOptions{
		Browsers: []string{string(l.opts.Engine)},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if l.opts.InstallBrowsers {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	l.playwright = pw
	l.initialized = true
	return nil
}

// Open launches a browser, creates a fresh context and returns its page as a
// session.Handle.
func (l *Launcher) Open(ctx context.Context) (session.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return nil, fmt.Errorf("launcher not initialized")
	}
	browserType, err := l.browserType()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Timeout:  playwright.Float(timeoutMS(ctx, l.opts.Timeout)),
	}
	if l.opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(l.opts.SlowMo)
	}
	if len(l.opts.Args) > 0 {
		launchOpts.Args = l.opts.Args
	}

	browser, err := browserType.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  l.opts.Viewport.Width,
			Height: l.opts.Viewport.Height,
		},
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	pwPage, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	pwPage.SetDefaultTimeout(l.opts.Timeout)

	page := &Page{
		browser: browser,
		context: bctx,
		page:    pwPage,
		timeout: l.opts.Timeout,
	}
	page.onClose = func() { l.forget(page) }

	l.mu.Lock()
	l.pages[page] = struct{}{}
	l.mu.Unlock()

	return page, nil
}

// OpenPages returns the number of handles that have not been closed.
func (l *Launcher) OpenPages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pages)
}

// Shutdown closes every open handle and stops Playwright.
func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	pages := make([]*Page, 0, len(l.pages))
	for p := range l.pages {
		pages = append(pages, p)
	}
	l.mu.Unlock()

	for _, p := range pages {
		_ = p.Close() // Ignore errors, continue cleanup
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized && l.playwright != nil {
		if err := l.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		l.initialized = false
	}
	return nil
}

func (l *Launcher) forget(p *Page) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pages, p)
}

func (l *Launcher) browserType() (playwright.BrowserType, error) {
	switch l.opts.Engine {
	case EngineChromium:
		return l.playwright.Chromium, nil
	case EngineFirefox:
		return l.playwright.Firefox, nil
	case EngineWebKit:
		return l.playwright.WebKit, nil
	}
	return nil, fmt.Errorf("unsupported browser engine: %s", l.opts.Engine)
}
