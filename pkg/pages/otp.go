package pages

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/uiharness/pkg/session"
)

// OTPPage is the page object for the one-time code form the application
// shows between Sign In and the home page.
type OTPPage struct {
	Input  string
	Verify string

	// Error is optional. Without it only the login page's error element is
	// checked after verification.
	Error string
}

// NewOTPPage builds the verification page object from the locator catalogue.
func NewOTPPage(loc *Locators) (*OTPPage, error) {
	if loc == nil {
		loc = DefaultLocators()
	}
	input, err := loc.Get(OTPPageName, OTPInput)
	if err != nil {
		return nil, err
	}
	verify, err := loc.Get(OTPPageName, VerifyButton)
	if err != nil {
		return nil, err
	}
	p := &OTPPage{Input: input, Verify: verify}
	p.Error, _ = loc.Get(OTPPageName, OTPError)
	return p, nil
}

// Loaded reports whether the code field and Verify button are visible.
func (p *OTPPage) Loaded(ctx context.Context, h session.Handle) (bool, error) {
	input, err := h.Visible(ctx, p.Input)
	if err != nil || !input {
		return false, err
	}
	return h.Visible(ctx, p.Verify)
}

// Submit enters code and clicks Verify.
func (p *OTPPage) Submit(ctx context.Context, h session.Handle, code string) error {
	if err := h.Fill(ctx, p.Input, code); err != nil {
		return fmt.Errorf("failed to enter otp: %w", err)
	}
	if err := h.Click(ctx, p.Verify); err != nil {
		return fmt.Errorf("failed to click verify: %w", err)
	}
	return nil
}

// ErrorMessage returns the visible verification error, or "".
func (p *OTPPage) ErrorMessage(ctx context.Context, h session.Handle) (string, error) {
	if p.Error == "" {
		return "", nil
	}
	visible, err := h.Visible(ctx, p.Error)
	if err != nil {
		return "", fmt.Errorf("failed to check otp error: %w", err)
	}
	if !visible {
		return "", nil
	}
	text, err := h.Text(ctx, p.Error)
	if err != nil {
		return "", fmt.Errorf("failed to read otp error: %w", err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}
