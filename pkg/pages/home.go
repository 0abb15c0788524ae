package pages

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/uiharness/pkg/session"
)

// HomePage is the landing page shown after login.
type HomePage struct {
	URL     string
	Landing string
}

// NewHomePage builds the home page object for homeURL.
func NewHomePage(homeURL string, loc *Locators) (*HomePage, error) {
	if homeURL == "" {
		return nil, fmt.Errorf("home url is required")
	}
	if loc == nil {
		loc = DefaultLocators()
	}
	landing, err := loc.Get(HomePageName, LandingContainer)
	if err != nil {
		return nil, err
	}
	return &HomePage{URL: homeURL, Landing: landing}, nil
}

// Open navigates to the home page.
func (p *HomePage) Open(ctx context.Context, h session.Handle) error {
	if err := h.Navigate(ctx, p.URL); err != nil {
		return fmt.Errorf("failed to open home page: %w", err)
	}
	return nil
}

// Loaded waits for the landing container and checks the URL. It returns an
// error describing what was missing.
func (p *HomePage) Loaded(ctx context.Context, h session.Handle) error {
	current := h.URL()
	if !strings.HasPrefix(current, p.URL) {
		return fmt.Errorf("expected home page %s, got %s", p.URL, current)
	}
	if err := h.WaitFor(ctx, p.Landing); err != nil {
		return fmt.Errorf("landing page container not found: %w", err)
	}
	return nil
}
