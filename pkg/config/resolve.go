package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/uiharness/pkg/browser"
	"github.com/entrhq/uiharness/pkg/dataset"
)

// Environment variables read by Resolve.
const (
	EnvBaseURL  = "UIHARNESS_BASE_URL"
	EnvHeadless = "UIHARNESS_HEADLESS"
	EnvWorkers  = "UIHARNESS_WORKERS"
	EnvPipeline = "RUNNING_IN_PIPELINE"
)

// Overrides are values given on the command line. Zero values and nil
// pointers mean "not set".
type Overrides struct {
	BaseURL  string
	Headless *bool
	MaxAge   *time.Duration
	Workers  int
}

// RunSettings is the fully resolved configuration for one run.
type RunSettings struct {
	BaseURL  string
	LoginURL string
	HomeURL  string

	Browser        browser.Options
	ScreenshotDir  string
	SnapshotLength int

	MaxAge           time.Duration
	EstablishTimeout time.Duration
	HealthTimeout    time.Duration
	PollInterval     time.Duration
	HealthProbe      bool
	Workers          int
	LoginRetries     int
	ScenarioTimeout  time.Duration
	IdleTimeout      time.Duration

	// Pipeline is set when running on a CI agent.
	Pipeline bool

	Credentials dataset.MapSource
}

// Resolve builds RunSettings with precedence:
// CLI flags > Environment variables > Config file > Defaults
//
// The config file values come from m, or from the global manager when m is
// nil, or from defaults when neither exists. getenv defaults to os.Getenv.
func Resolve(m *Manager, cli Overrides, getenv func(string) string) (*RunSettings, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if m == nil && IsInitialized() {
		m = Global()
	}

	browserSection := NewBrowserSection()
	sessionSection := NewSessionSection()
	credentials := NewCredentialsSection()
	if m != nil {
		if s := sectionAs[*BrowserSection](m, SectionIDBrowser); s != nil {
			browserSection = s
		}
		if s := sectionAs[*SessionSection](m, SectionIDSession); s != nil {
			sessionSection = s
		}
		if s := sectionAs[*CredentialsSection](m, SectionIDCredentials); s != nil {
			credentials = s
		}
	}

	if err := browserSection.Validate(); err != nil {
		return nil, fmt.Errorf("invalid browser config: %w", err)
	}
	if err := sessionSection.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	// Start from the config file (or defaults)
	sessionSection.mu.RLock()
	rs := &RunSettings{
		MaxAge:           sessionSection.MaxAge,
		EstablishTimeout: sessionSection.EstablishTimeout,
		HealthTimeout:    sessionSection.HealthTimeout,
		PollInterval:     sessionSection.PollInterval,
		HealthProbe:      sessionSection.HealthProbe,
		Workers:          sessionSection.Workers,
		LoginRetries:     sessionSection.LoginRetries,
		ScenarioTimeout:  sessionSection.ScenarioTimeout,
		IdleTimeout:      sessionSection.IdleTimeout,
	}
	sessionSection.mu.RUnlock()

	browserSection.mu.RLock()
	rs.ScreenshotDir = browserSection.ScreenshotDir
	rs.SnapshotLength = browserSection.SnapshotLength
	browserSection.mu.RUnlock()
	rs.Browser = browserSection.Options()
	rs.Credentials = credentials.Source()

	// Environment overrides the file
	if v := getenv(EnvBaseURL); v != "" {
		rs.BaseURL = v
	}
	if v, ok := parseEnvBool(getenv(EnvHeadless)); ok {
		rs.Browser.Headless = v
	}
	if v := strings.TrimSpace(getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvWorkers, err)
		}
		rs.Workers = n
	}
	if v, ok := parseEnvBool(getenv(EnvPipeline)); ok && v {
		rs.Pipeline = true
		rs.Browser.Headless = true
		rs.Browser.Args = appendMissing(rs.Browser.Args, browser.PipelineArgs...)
	}

	// CLI flags override everything
	if cli.BaseURL != "" {
		rs.BaseURL = cli.BaseURL
	}
	if cli.Headless != nil {
		rs.Browser.Headless = *cli.Headless
	}
	if cli.MaxAge != nil {
		rs.MaxAge = *cli.MaxAge
	}
	if cli.Workers > 0 {
		rs.Workers = cli.Workers
	}

	login, home, err := sessionSection.URLs(rs.BaseURL)
	if err != nil {
		return nil, err
	}
	rs.LoginURL, rs.HomeURL = login, home
	if rs.BaseURL == "" {
		sessionSection.mu.RLock()
		rs.BaseURL = sessionSection.BaseURL
		sessionSection.mu.RUnlock()
	}

	if rs.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", rs.Workers)
	}
	return rs, nil
}

func appendMissing(list []string, items ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			list = append(list, s)
			seen[s] = true
		}
	}
	return list
}
