package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// requireBrowser skips tests that need a real browser unless explicitly
// enabled.
func requireBrowser(t *testing.T) *Launcher {
	t.Helper()
	if os.Getenv("UIHARNESS_BROWSER_TESTS") != "1" {
		t.Skip("set UIHARNESS_BROWSER_TESTS=1 to run browser tests")
	}
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	l, err := NewLauncher(Options{Headless: true, InstallBrowsers: true, Timeout: 5000})
	if err != nil {
		t.Fatalf("NewLauncher() error = %v", err)
	}
	if err := l.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Shutdown() })
	return l
}

func loginServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginHTML)
	})
	return httptest.NewServer(mux)
}

func TestLauncher_Open(t *testing.T) {
	l := requireBrowser(t)
	srv := loginServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h, err := l.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	page := h.(*Page)
	if l.OpenPages() != 1 {
		t.Errorf("OpenPages() = %d, want 1", l.OpenPages())
	}

	if err := page.Navigate(ctx, srv.URL+"/login"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if !strings.HasSuffix(page.URL(), "/login") {
		t.Errorf("URL() = %q", page.URL())
	}
	if err := page.Fill(ctx, "#company-email", "qa@example.com"); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if err := page.Click(ctx, "#terms"); err != nil {
		t.Fatalf("Click() error = %v", err)
	}

	visible, err := page.Visible(ctx, "//button[normalize-space()='Sign In']")
	if err != nil || !visible {
		t.Errorf("Visible() = %v, %v", visible, err)
	}
	text, err := page.Text(ctx, "[role=alert]")
	if err != nil || !strings.Contains(text, "Invalid") {
		t.Errorf("Text() = %q, %v", text, err)
	}
	if err := page.WaitFor(ctx, "h1"); err != nil {
		t.Errorf("WaitFor() error = %v", err)
	}
	if err := page.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	snap, err := page.Snapshot(0)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if strings.Contains(snap, "hunter2") || !strings.Contains(snap, "title: Sign in") {
		t.Errorf("unexpected snapshot:\n%s", snap)
	}

	shot := filepath.Join(t.TempDir(), "shots", "login.png")
	if err := page.Screenshot(shot); err != nil {
		t.Fatalf("Screenshot() error = %v", err)
	}
	if _, err := os.Stat(shot); err != nil {
		t.Errorf("screenshot not written: %v", err)
	}

	if err := page.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	_ = page.Close()
	if l.OpenPages() != 0 {
		t.Errorf("OpenPages() = %d after close", l.OpenPages())
	}
	if err := page.Ping(ctx); err != ErrPageClosed {
		t.Errorf("Ping() after close = %v, want ErrPageClosed", err)
	}
}

func TestPage_WaitForHonoursContext(t *testing.T) {
	l := requireBrowser(t)
	srv := loginServer()
	defer srv.Close()

	h, err := l.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if err := h.Navigate(context.Background(), srv.URL+"/login"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := h.WaitFor(ctx, "#never-rendered"); err == nil {
		t.Fatal("expected WaitFor to fail")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("WaitFor ignored deadline, took %v", elapsed)
	}
}

func TestLauncher_OpenBeforeInitialize(t *testing.T) {
	l, err := NewLauncher(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Open(context.Background()); err == nil {
		t.Error("expected error before Initialize")
	}
	if err := l.Shutdown(); err != nil {
		t.Errorf("Shutdown() on idle launcher = %v", err)
	}
}
