package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/uiharness/pkg/browser"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"

	defaultHeadless       = false
	defaultPageLoad       = 15 * time.Second
	defaultScreenshotDir  = "screenshots"
	defaultSnapshotLength = browser.DefaultSnapshotLength
)

// BrowserSection configures the browsers opened for each worker.
type BrowserSection struct {
	Engine          browser.Engine
	Headless        bool
	ViewportWidth   int
	ViewportHeight  int
	PageLoadTimeout time.Duration
	SlowMo          time.Duration
	Args            []string
	ScreenshotDir   string
	SnapshotLength  int
	InstallBrowsers bool
	mu              sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	s := &BrowserSection{}
	s.reset()
	return s
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser Settings"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Browser engine, window size, timeouts and where failure screenshots are written."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]any{
		"engine":            string(s.Engine),
		"headless":          s.Headless,
		"viewport_width":    s.ViewportWidth,
		"viewport_height":   s.ViewportHeight,
		"page_load_timeout": s.PageLoadTimeout.String(),
		"slow_mo":           s.SlowMo.String(),
		"args":              append([]string(nil), s.Args...),
		"screenshot_dir":    s.ScreenshotDir,
		"snapshot_length":   s.SnapshotLength,
		"install_browsers":  s.InstallBrowsers,
	}
}

// SetData updates the configuration from the provided data.
func (s *BrowserSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "engine":
			var engine string
			engine, err = asString(key, value)
			s.Engine = browser.Engine(engine)
		case "headless":
			s.Headless, err = asBool(key, value)
		case "viewport_width":
			s.ViewportWidth, err = asInt(key, value)
		case "viewport_height":
			s.ViewportHeight, err = asInt(key, value)
		case "page_load_timeout":
			s.PageLoadTimeout, err = asDuration(key, value)
		case "slow_mo":
			s.SlowMo, err = asDuration(key, value)
		case "args":
			s.Args, err = asStringSlice(key, value)
		case "screenshot_dir":
			s.ScreenshotDir, err = asString(key, value)
		case "snapshot_length":
			s.SnapshotLength, err = asInt(key, value)
		case "install_browsers":
			s.InstallBrowsers, err = asBool(key, value)
		default:
			// Ignore unknown keys for forward compatibility
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.Engine {
	case browser.EngineChromium, browser.EngineFirefox, browser.EngineWebKit:
	default:
		return fmt.Errorf("engine must be chromium, firefox or webkit, got %q", s.Engine)
	}
	if s.ViewportWidth <= 0 || s.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", s.ViewportWidth, s.ViewportHeight)
	}
	if s.PageLoadTimeout <= 0 {
		return fmt.Errorf("page_load_timeout must be positive, got %v", s.PageLoadTimeout)
	}
	if s.SlowMo < 0 {
		return fmt.Errorf("slow_mo cannot be negative, got %v", s.SlowMo)
	}
	if s.SnapshotLength < 0 {
		return fmt.Errorf("snapshot_length cannot be negative, got %d", s.SnapshotLength)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *BrowserSection) reset() {
	s.Engine = browser.DefaultEngine
	s.Headless = defaultHeadless
	s.ViewportWidth = browser.DefaultViewportWidth
	s.ViewportHeight = browser.DefaultViewportHeight
	s.PageLoadTimeout = defaultPageLoad
	s.SlowMo = 0
	s.Args = nil
	s.ScreenshotDir = defaultScreenshotDir
	s.SnapshotLength = defaultSnapshotLength
	s.InstallBrowsers = true
}

// Options converts the section into launcher options.
func (s *BrowserSection) Options() browser.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return browser.Options{
		Engine:   s.Engine,
		Headless: s.Headless,
		Viewport: &browser.Viewport{
			Width:  s.ViewportWidth,
			Height: s.ViewportHeight,
		},
		Timeout:         float64(s.PageLoadTimeout.Milliseconds()),
		SlowMo:          float64(s.SlowMo.Milliseconds()),
		Args:            append([]string(nil), s.Args...),
		InstallBrowsers: s.InstallBrowsers,
	}
}
