package sessiontest

import (
	"context"
	"sync"

	"github.com/entrhq/uiharness/pkg/session"
)

// Selectors names the login form elements the fake App renders.
type Selectors struct {
	Email    string
	Password string
	Terms    string
	Submit   string
	Marker   string
	Error    string

	OTPInput string
	Verify   string
	OTPError string
}

// App models the login behaviour of the application under test on top of
// fake handles: the login URL renders the form, a valid submit moves to the
// home URL and shows the marker, an invalid one shows an error message.
// With OTPCode set a valid submit first moves to OTPURL, and only the right
// code leads on to the home URL.
type App struct {
	LoginURL  string
	HomeURL   string
	OTPURL    string
	Selectors Selectors

	// OTPCode enables the verification step.
	OTPCode string

	// OTPMessage is shown on a wrong code.
	OTPMessage string

	// Users maps email to password.
	Users map[string]string

	// RequireTerms rejects submits without the terms checkbox clicked.
	RequireTerms bool

	// RejectMessage is shown on invalid credentials.
	RejectMessage string

	// TermsMessage is shown when terms were not accepted.
	TermsMessage string

	// EmailRequired and PasswordRequired are shown for empty fields when set.
	EmailRequired    string
	PasswordRequired string

	// Unresponsive makes submit do nothing, so neither marker nor error appears.
	Unresponsive bool

	mu      sync.Mutex
	authed  map[*Handle]bool
	pending map[*Handle]bool
}

// Driver returns a fake driver whose handles run this app.
func (a *App) Driver() *Driver {
	return &Driver{Setup: a.Install}
}

// Install wires the app's hooks into h.
func (a *App) Install(h *Handle) {
	h.OnNavigate = func(h *Handle, url string) {
		switch url {
		case a.LoginURL:
			a.showForm(h)
		case a.HomeURL:
			if a.LoggedIn(h) {
				a.showHome(h)
				return
			}
			// Unauthenticated visits bounce to the login form.
			h.SetURL(a.LoginURL)
			a.showForm(h)
		}
	}
	h.OnClick[a.Selectors.Terms] = func(h *Handle) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.values[a.Selectors.Terms] == "checked" {
			delete(h.values, a.Selectors.Terms)
		} else {
			h.values[a.Selectors.Terms] = "checked"
		}
	}
	h.OnClick[a.Selectors.Submit] = a.submit
	if a.Selectors.Verify != "" {
		h.OnClick[a.Selectors.Verify] = a.verify
	}
}

func (a *App) submit(h *Handle) {
	if a.Unresponsive {
		return
	}

	email := h.Value(a.Selectors.Email)
	password := h.Value(a.Selectors.Password)
	terms := h.Value(a.Selectors.Terms) == "checked"

	if email == "" && a.EmailRequired != "" {
		h.Show(a.Selectors.Error, a.EmailRequired)
		return
	}
	if password == "" && a.PasswordRequired != "" {
		h.Show(a.Selectors.Error, a.PasswordRequired)
		return
	}
	if a.RequireTerms && !terms {
		h.Show(a.Selectors.Error, a.TermsMessage)
		return
	}

	want, ok := a.Users[email]
	if !ok || want != password {
		h.Show(a.Selectors.Error, a.RejectMessage)
		return
	}

	if a.OTPCode != "" {
		a.mu.Lock()
		if a.pending == nil {
			a.pending = make(map[*Handle]bool)
		}
		a.pending[h] = true
		a.mu.Unlock()

		h.SetURL(a.OTPURL)
		a.showOTP(h)
		return
	}
	a.authenticate(h)
}

func (a *App) verify(h *Handle) {
	a.mu.Lock()
	pending := a.pending[h]
	a.mu.Unlock()
	if !pending {
		return
	}

	if h.Value(a.Selectors.OTPInput) != a.OTPCode {
		h.Show(a.Selectors.OTPError, a.OTPMessage)
		return
	}

	a.mu.Lock()
	delete(a.pending, h)
	a.mu.Unlock()
	a.authenticate(h)
}

func (a *App) authenticate(h *Handle) {
	a.mu.Lock()
	if a.authed == nil {
		a.authed = make(map[*Handle]bool)
	}
	a.authed[h] = true
	a.mu.Unlock()

	h.SetURL(a.HomeURL)
	a.showHome(h)
}

// LoggedIn reports whether a login succeeded on h.
func (a *App) LoggedIn(h *Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authed[h]
}

// Logout forgets the login on h, as a server-side session expiry would.
func (a *App) Logout(h *Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.authed, h)
	delete(a.pending, h)
}

func (a *App) showForm(h *Handle) {
	h.Show(a.Selectors.Email, "")
	h.Show(a.Selectors.Password, "")
	h.Show(a.Selectors.Terms, "")
	h.Show(a.Selectors.Submit, "Sign In")
}

func (a *App) showOTP(h *Handle) {
	h.mu.Lock()
	h.visible = map[string]bool{a.Selectors.OTPInput: true, a.Selectors.Verify: true}
	h.text = map[string]string{a.Selectors.Verify: "Verify"}
	h.values = make(map[string]string)
	h.mu.Unlock()
}

func (a *App) showHome(h *Handle) {
	h.mu.Lock()
	h.visible = map[string]bool{a.Selectors.Marker: true}
	h.text = map[string]string{a.Selectors.Marker: "Welcome"}
	h.values = make(map[string]string)
	h.mu.Unlock()
}

// Flow is a scripted session.LoginFlow that counts submissions. A successful
// Submit moves the handle to HomeURL.
type Flow struct {
	mu      sync.Mutex
	submits int

	LoginURL string
	HomeURL  string

	// SubmitErr is returned by Submit.
	SubmitErr error

	// MarkerErr is returned by AwaitMarker.
	MarkerErr error

	// Hang makes AwaitMarker block until its context is done.
	Hang bool
}

// Submit counts the attempt and navigates to the home page.
func (f *Flow) Submit(ctx context.Context, h session.Handle, cred session.Credential) error {
	f.mu.Lock()
	f.submits++
	err := f.SubmitErr
	home := f.HomeURL
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if home == "" {
		home = "https://app.test/home"
	}
	return h.Navigate(ctx, home)
}

// AwaitMarker returns MarkerErr, or blocks when Hang is set.
func (f *Flow) AwaitMarker(ctx context.Context, h session.Handle) error {
	f.mu.Lock()
	hang, err := f.Hang, f.MarkerErr
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

// OnLoginPage compares the handle's URL with LoginURL.
func (f *Flow) OnLoginPage(ctx context.Context, h session.Handle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return f.LoginURL != "" && h.URL() == f.LoginURL, nil
}

// Submits returns the number of Submit calls, i.e. login attempts.
func (f *Flow) Submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

// SetMarkerErr changes MarkerErr between calls.
func (f *Flow) SetMarkerErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MarkerErr = err
}
