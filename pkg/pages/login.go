package pages

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/entrhq/uiharness/pkg/session"
)

// DefaultPollInterval is how often AwaitMarker re-checks the page.
const DefaultPollInterval = 250 * time.Millisecond

// LoginPage is the page object for the login form. It implements
// session.LoginFlow.
type LoginPage struct {
	URL string

	Email    string
	Password string
	Terms    string
	SignIn   string
	Error    string
	Loading  string

	// Marker is the element that only renders after a successful login.
	Marker string

	// FailurePatterns recognise error texts that mean the login was rejected.
	// When empty, any error text counts.
	FailurePatterns []*regexp.Regexp

	PollInterval time.Duration

	// OTP, when set, is completed with OTPCode as soon as the verification
	// form appears after Sign In.
	OTP     *OTPPage
	OTPCode string
}

// LoginOption configures a LoginPage.
type LoginOption func(*LoginPage)

// WithPollInterval sets how often AwaitMarker checks the page.
func WithPollInterval(d time.Duration) LoginOption {
	return func(p *LoginPage) {
		if d > 0 {
			p.PollInterval = d
		}
	}
}

// WithFailureMessages treats error texts containing any of msgs
// (case-insensitive) as a rejected login.
func WithFailureMessages(msgs ...string) LoginOption {
	return func(p *LoginPage) {
		for _, m := range msgs {
			if strings.TrimSpace(m) == "" {
				continue
			}
			p.FailurePatterns = append(p.FailurePatterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(m)))
		}
	}
}

// WithMarker overrides the post-login marker selector.
func WithMarker(selector string) LoginOption {
	return func(p *LoginPage) {
		if selector != "" {
			p.Marker = selector
		}
	}
}

// WithOTP completes the one-time code step with code. It is ignored when
// either argument is empty.
func WithOTP(otp *OTPPage, code string) LoginOption {
	return func(p *LoginPage) {
		if otp != nil && code != "" {
			p.OTP, p.OTPCode = otp, code
		}
	}
}

// NewLoginPage builds the login page object for loginURL from the locator
// catalogue. The marker defaults to the home page's landing container.
func NewLoginPage(loginURL string, loc *Locators, opts ...LoginOption) (*LoginPage, error) {
	if loginURL == "" {
		return nil, fmt.Errorf("login url is required")
	}
	if loc == nil {
		loc = DefaultLocators()
	}

	p := &LoginPage{
		URL:          loginURL,
		PollInterval: DefaultPollInterval,
	}

	required := []struct {
		page, name string
		dst        *string
	}{
		{LoginPageName, EmailField, &p.Email},
		{LoginPageName, PasswordField, &p.Password},
		{LoginPageName, SignInButton, &p.SignIn},
		{LoginPageName, GeneralError, &p.Error},
		{HomePageName, LandingContainer, &p.Marker},
	}
	for _, r := range required {
		sel, err := loc.Get(r.page, r.name)
		if err != nil {
			return nil, err
		}
		*r.dst = sel
	}

	// Optional elements
	p.Terms, _ = loc.Get(LoginPageName, TermsCheckbox)
	p.Loading, _ = loc.Get(LoginPageName, LoadingIndicator)

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Open navigates to the login form and waits for the email field.
func (p *LoginPage) Open(ctx context.Context, h session.Handle) error {
	if err := h.Navigate(ctx, p.URL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := h.WaitFor(ctx, p.Email); err != nil {
		return fmt.Errorf("login form did not render: %w", err)
	}
	return nil
}

// Loaded reports whether every login form control is visible.
func (p *LoginPage) Loaded(ctx context.Context, h session.Handle) (bool, error) {
	for _, sel := range []string{p.Email, p.Password, p.Terms, p.SignIn} {
		if sel == "" {
			continue
		}
		ok, err := h.Visible(ctx, sel)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Submit opens the form, fills cred and clicks Sign In. The terms checkbox is
// ticked only when cred.AcceptTerms is set.
func (p *LoginPage) Submit(ctx context.Context, h session.Handle, cred session.Credential) error {
	if err := p.Open(ctx, h); err != nil {
		return err
	}
	if err := h.Fill(ctx, p.Email, cred.Email); err != nil {
		return fmt.Errorf("failed to enter email: %w", err)
	}
	if err := h.Fill(ctx, p.Password, cred.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	if cred.AcceptTerms && p.Terms != "" {
		if err := h.Click(ctx, p.Terms); err != nil {
			return fmt.Errorf("failed to accept terms: %w", err)
		}
	}
	if err := h.Click(ctx, p.SignIn); err != nil {
		return fmt.Errorf("failed to click sign in: %w", err)
	}
	return nil
}

// AwaitMarker polls until the post-login marker is visible, the page shows a
// recognised error, or ctx is done. With an OTP step configured it enters the
// code once the verification form shows and keeps waiting for the marker.
func (p *LoginPage) AwaitMarker(ctx context.Context, h session.Handle) error {
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	verified := false
	for {
		done, err := p.checkOutcome(ctx, h)
		if done || err != nil {
			return err
		}
		if p.OTP != nil {
			if verified, err = p.otpStep(ctx, h, verified); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkOutcome looks at the page once. It reports done with a nil error when
// the marker is visible, and returns a *session.Rejection for a failure text.
func (p *LoginPage) checkOutcome(ctx context.Context, h session.Handle) (bool, error) {
	marker, err := h.Visible(ctx, p.Marker)
	if err != nil {
		return false, fmt.Errorf("failed to check login marker: %w", err)
	}
	if marker {
		return true, nil
	}

	msg, err := p.ErrorMessage(ctx, h)
	if err != nil {
		return false, err
	}
	if msg != "" && p.isFailure(msg) {
		return true, &session.Rejection{Message: msg}
	}
	return false, nil
}

// otpStep submits the code the first time the verification form is seen.
// Afterwards it reports a verification error as a rejection.
func (p *LoginPage) otpStep(ctx context.Context, h session.Handle, verified bool) (bool, error) {
	if verified {
		msg, err := p.OTP.ErrorMessage(ctx, h)
		if err != nil {
			return true, err
		}
		if msg != "" {
			return true, &session.Rejection{Message: msg}
		}
		return true, nil
	}

	shown, err := p.OTP.Loaded(ctx, h)
	if err != nil {
		return false, fmt.Errorf("failed to check otp form: %w", err)
	}
	if !shown {
		return false, nil
	}
	if err := p.OTP.Submit(ctx, h, p.OTPCode); err != nil {
		return false, err
	}
	return true, nil
}

// ErrorMessage returns the visible error text, or "" when none is shown.
func (p *LoginPage) ErrorMessage(ctx context.Context, h session.Handle) (string, error) {
	visible, err := h.Visible(ctx, p.Error)
	if err != nil {
		return "", fmt.Errorf("failed to check error message: %w", err)
	}
	if !visible {
		return "", nil
	}
	text, err := h.Text(ctx, p.Error)
	if err != nil {
		return "", fmt.Errorf("failed to read error message: %w", err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (p *LoginPage) isFailure(msg string) bool {
	if len(p.FailurePatterns) == 0 {
		return true
	}
	for _, re := range p.FailurePatterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}

// OnLoginPage reports whether h is showing the login form: either its URL
// points at the login path or the email field and Sign In button are visible.
func (p *LoginPage) OnLoginPage(ctx context.Context, h session.Handle) (bool, error) {
	if samePath(h.URL(), p.URL) {
		return true, nil
	}
	email, err := h.Visible(ctx, p.Email)
	if err != nil || !email {
		return false, err
	}
	return h.Visible(ctx, p.SignIn)
}

// IsLoading reports whether the loading indicator is visible.
func (p *LoginPage) IsLoading(ctx context.Context, h session.Handle) (bool, error) {
	if p.Loading == "" {
		return false, nil
	}
	return h.Visible(ctx, p.Loading)
}

// samePath compares scheme, host and path, ignoring query and fragment.
func samePath(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/")
}
