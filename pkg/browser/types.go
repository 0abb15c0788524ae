package browser

import "fmt"

// Engine selects the Playwright browser type.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebKit   Engine = "webkit"
)

// Options configures the browsers a Launcher opens.
type Options struct {
	// Engine is the browser type to launch
	Engine Engine

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout is the default timeout for page operations (in milliseconds)
	Timeout float64

	// SlowMo delays each Playwright operation (in milliseconds)
	SlowMo float64

	// Args are extra command line switches passed to the browser
	Args []string

	// InstallBrowsers downloads the browser binaries before the first launch
	InstallBrowsers bool
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for launched browsers.
const (
	DefaultTimeout        = 15000.0 // 15 seconds in milliseconds
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultSnapshotLength = 8000
	DefaultEngine         = EngineChromium
	minOperationTimeoutMS = 1.0
	pingScript            = "() => document.readyState"
)

// PipelineArgs are the chromium switches used when running inside a CI
// pipeline agent.
var PipelineArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--disable-extensions",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-renderer-backgrounding",
	"--disable-default-apps",
	"--disable-sync",
}

// withDefaults fills zero fields and validates the engine.
func (o Options) withDefaults() (Options, error) {
	if o.Engine == "" {
		o.Engine = DefaultEngine
	}
	switch o.Engine {
	case EngineChromium, EngineFirefox, EngineWebKit:
	default:
		return o, fmt.Errorf("unsupported browser engine: %s", o.Engine)
	}
	if o.Viewport == nil {
		o.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		return o, fmt.Errorf("invalid viewport %dx%d", o.Viewport.Width, o.Viewport.Height)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}
