package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/uiharness/pkg/pages"
	"github.com/entrhq/uiharness/pkg/runner"
	"github.com/entrhq/uiharness/pkg/session"
)

const (
	// SectionIDSession is the identifier for the session settings section
	SectionIDSession = "session"

	defaultBaseURL   = "http://localhost:3000"
	defaultLoginPath = "/auth/login"
	defaultHomePath  = "/home"
	defaultMaxAge    = 30 * time.Minute
	defaultWorkers   = 4
)

// SessionSection configures the application under test and how long logins
// are reused.
type SessionSection struct {
	BaseURL string

	// LoginURL and HomeURL are absolute, or paths joined to BaseURL.
	LoginURL string
	HomeURL  string

	MaxAge           time.Duration
	EstablishTimeout time.Duration
	HealthTimeout    time.Duration
	PollInterval     time.Duration
	HealthProbe      bool
	Workers          int
	LoginRetries     int

	// ScenarioTimeout bounds one scenario including its login.
	ScenarioTimeout time.Duration

	// IdleTimeout closes a worker's browser once it has gone this long
	// without a scenario. Zero keeps it until the run ends.
	IdleTimeout time.Duration

	mu sync.RWMutex
}

// NewSessionSection creates a session section with default settings.
func NewSessionSection() *SessionSection {
	s := &SessionSection{}
	s.reset()
	return s
}

// ID returns the section identifier.
func (s *SessionSection) ID() string {
	return SectionIDSession
}

// Title returns the section title.
func (s *SessionSection) Title() string {
	return "Session Settings"
}

// Description returns the section description.
func (s *SessionSection) Description() string {
	return "Application URLs, login reuse window, login timeouts and the number of parallel workers."
}

// Data returns the current configuration data.
func (s *SessionSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]any{
		"base_url":          s.BaseURL,
		"login_url":         s.LoginURL,
		"home_url":          s.HomeURL,
		"max_age":           s.MaxAge.String(),
		"establish_timeout": s.EstablishTimeout.String(),
		"health_timeout":    s.HealthTimeout.String(),
		"poll_interval":     s.PollInterval.String(),
		"health_probe":      s.HealthProbe,
		"workers":           s.Workers,
		"login_retries":     s.LoginRetries,
		"scenario_timeout":  s.ScenarioTimeout.String(),
		"idle_timeout":      s.IdleTimeout.String(),
	}
}

// SetData updates the configuration from the provided data.
func (s *SessionSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		var err error
		switch key {
		case "base_url":
			s.BaseURL, err = asString(key, value)
		case "login_url":
			s.LoginURL, err = asString(key, value)
		case "home_url":
			s.HomeURL, err = asString(key, value)
		case "max_age":
			s.MaxAge, err = asDuration(key, value)
		case "establish_timeout":
			s.EstablishTimeout, err = asDuration(key, value)
		case "health_timeout":
			s.HealthTimeout, err = asDuration(key, value)
		case "poll_interval":
			s.PollInterval, err = asDuration(key, value)
		case "health_probe":
			s.HealthProbe, err = asBool(key, value)
		case "workers":
			s.Workers, err = asInt(key, value)
		case "login_retries":
			s.LoginRetries, err = asInt(key, value)
		case "scenario_timeout":
			s.ScenarioTimeout, err = asDuration(key, value)
		case "idle_timeout":
			s.IdleTimeout, err = asDuration(key, value)
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
func (s *SessionSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := absoluteURL(s.BaseURL, ""); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if s.EstablishTimeout <= 0 {
		return fmt.Errorf("establish_timeout must be positive, got %v", s.EstablishTimeout)
	}
	if s.HealthTimeout <= 0 {
		return fmt.Errorf("health_timeout must be positive, got %v", s.HealthTimeout)
	}
	if s.PollInterval <= 0 || s.PollInterval > s.EstablishTimeout {
		return fmt.Errorf("poll_interval must be between 0 and establish_timeout, got %v", s.PollInterval)
	}
	if s.Workers < 1 || s.Workers > session.DefaultMaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d, got %d", session.DefaultMaxWorkers, s.Workers)
	}
	if s.LoginRetries < 0 {
		return fmt.Errorf("login_retries cannot be negative, got %d", s.LoginRetries)
	}
	if s.ScenarioTimeout <= 0 {
		return fmt.Errorf("scenario_timeout must be positive, got %v", s.ScenarioTimeout)
	}
	if s.IdleTimeout < 0 || (s.IdleTimeout > 0 && s.IdleTimeout <= s.ScenarioTimeout) {
		return fmt.Errorf("idle_timeout must be 0 or longer than scenario_timeout, got %v", s.IdleTimeout)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *SessionSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *SessionSection) reset() {
	s.BaseURL = defaultBaseURL
	s.LoginURL = defaultLoginPath
	s.HomeURL = defaultHomePath
	s.MaxAge = defaultMaxAge
	s.EstablishTimeout = session.DefaultEstablishTimeout
	s.HealthTimeout = session.DefaultHealthTimeout
	s.PollInterval = pages.DefaultPollInterval
	s.HealthProbe = true
	s.Workers = defaultWorkers
	s.LoginRetries = 0
	s.ScenarioTimeout = runner.DefaultScenarioTimeout
	s.IdleTimeout = 0
}

// URLs returns the absolute login and home URLs for baseURL, or for the
// configured base URL when baseURL is empty.
func (s *SessionSection) URLs(baseURL string) (login, home string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if baseURL == "" {
		baseURL = s.BaseURL
	}
	if login, err = absoluteURL(baseURL, s.LoginURL); err != nil {
		return "", "", fmt.Errorf("login_url: %w", err)
	}
	if home, err = absoluteURL(baseURL, s.HomeURL); err != nil {
		return "", "", fmt.Errorf("home_url: %w", err)
	}
	return login, home, nil
}

// absoluteURL resolves ref against base. An absolute ref is returned as is.
func absoluteURL(base, ref string) (string, error) {
	if ref != "" {
		if u, err := url.Parse(ref); err == nil && u.IsAbs() {
			return ref, nil
		}
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	if !b.IsAbs() || b.Host == "" {
		return "", fmt.Errorf("url must be absolute, got %q", base)
	}
	if ref == "" {
		return strings.TrimSuffix(b.String(), "/"), nil
	}
	return strings.TrimSuffix(b.String(), "/") + "/" + strings.TrimPrefix(ref, "/"), nil
}
