package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/entrhq/uiharness/pkg/browser"
	"github.com/entrhq/uiharness/pkg/dataset"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewDefaultManager(store)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestResolve_Defaults(t *testing.T) {
	resetGlobal()

	rs, err := Resolve(nil, Overrides{}, env(nil))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rs.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %q", rs.BaseURL)
	}
	if rs.LoginURL != "http://localhost:3000/auth/login" || rs.HomeURL != "http://localhost:3000/home" {
		t.Errorf("URLs = %q, %q", rs.LoginURL, rs.HomeURL)
	}
	if rs.Workers != 4 || rs.MaxAge != 30*time.Minute || rs.LoginRetries != 0 {
		t.Errorf("unexpected defaults: %+v", rs)
	}
	if rs.Pipeline || rs.Browser.Headless {
		t.Error("pipeline mode should be off by default")
	}
}

func TestResolve_Precedence(t *testing.T) {
	m := newTestManager(t)
	sessionSection := sectionAs[*SessionSection](m, SectionIDSession)
	sessionSection.SetData(map[string]any{
		"base_url": "https://file.example.com",
		"max_age":  "10m",
		"workers":  2,
	})
	sectionAs[*BrowserSection](m, SectionIDBrowser).SetData(map[string]any{"headless": false})
	sectionAs[*CredentialsSection](m, SectionIDCredentials).Set(dataset.ValidUser,
		dataset.CredentialEntry{Email: "config@example.com", Password: "pw"})

	t.Run("file over defaults", func(t *testing.T) {
		rs, err := Resolve(m, Overrides{}, env(nil))
		if err != nil {
			t.Fatal(err)
		}
		if rs.BaseURL != "https://file.example.com" || rs.MaxAge != 10*time.Minute || rs.Workers != 2 {
			t.Errorf("file values not applied: %+v", rs)
		}
		if rs.LoginURL != "https://file.example.com/auth/login" {
			t.Errorf("LoginURL = %q", rs.LoginURL)
		}
		if _, err := rs.Credentials.Credential(dataset.ValidUser); err != nil {
			t.Errorf("config credentials missing: %v", err)
		}
	})

	t.Run("environment over file", func(t *testing.T) {
		rs, err := Resolve(m, Overrides{}, env(map[string]string{
			EnvBaseURL:  "https://env.example.com",
			EnvHeadless: "true",
			EnvWorkers:  "6",
		}))
		if err != nil {
			t.Fatal(err)
		}
		if rs.BaseURL != "https://env.example.com" || rs.HomeURL != "https://env.example.com/home" {
			t.Errorf("env base url not applied: %+v", rs)
		}
		if !rs.Browser.Headless || rs.Workers != 6 {
			t.Errorf("env values not applied: headless=%v workers=%d", rs.Browser.Headless, rs.Workers)
		}
	})

	t.Run("cli over environment", func(t *testing.T) {
		headless := false
		maxAge := time.Duration(0)
		rs, err := Resolve(m, Overrides{
			BaseURL:  "https://cli.example.com",
			Headless: &headless,
			MaxAge:   &maxAge,
			Workers:  1,
		}, env(map[string]string{
			EnvBaseURL:  "https://env.example.com",
			EnvHeadless: "1",
			EnvWorkers:  "6",
		}))
		if err != nil {
			t.Fatal(err)
		}
		if rs.BaseURL != "https://cli.example.com" || rs.Browser.Headless || rs.Workers != 1 {
			t.Errorf("cli values not applied: %+v", rs)
		}
		if rs.MaxAge != 0 {
			t.Errorf("explicit zero max age should win, got %v", rs.MaxAge)
		}
	})
}

func TestResolve_Pipeline(t *testing.T) {
	resetGlobal()

	rs, err := Resolve(nil, Overrides{}, env(map[string]string{EnvPipeline: "true"}))
	if err != nil {
		t.Fatal(err)
	}
	if !rs.Pipeline || !rs.Browser.Headless {
		t.Error("pipeline mode should force headless")
	}
	if len(rs.Browser.Args) != len(browser.PipelineArgs) {
		t.Errorf("Args = %v", rs.Browser.Args)
	}

	// CLI still wins over the pipeline default
	headed := false
	rs, err = Resolve(nil, Overrides{Headless: &headed}, env(map[string]string{EnvPipeline: "yes"}))
	if err != nil {
		t.Fatal(err)
	}
	if rs.Browser.Headless {
		t.Error("cli headless=false should override pipeline")
	}
}

func TestResolve_Errors(t *testing.T) {
	resetGlobal()

	if _, err := Resolve(nil, Overrides{}, env(map[string]string{EnvWorkers: "many"})); err == nil {
		t.Error("expected error for non-numeric workers")
	}
	if _, err := Resolve(nil, Overrides{BaseURL: "not a url"}, env(nil)); err == nil {
		t.Error("expected error for relative base url")
	}

	m := newTestManager(t)
	sectionAs[*SessionSection](m, SectionIDSession).SetData(map[string]any{"workers": 0})
	if _, err := Resolve(m, Overrides{}, env(nil)); err == nil {
		t.Error("expected validation error from file values")
	}
}

func TestAppendMissing(t *testing.T) {
	got := appendMissing([]string{"--no-sandbox"}, "--no-sandbox", "--disable-gpu")
	if len(got) != 2 || got[1] != "--disable-gpu" {
		t.Errorf("appendMissing() = %v", got)
	}
}
