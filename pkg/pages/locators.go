package pages

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Page and element names used in locator files.
const (
	LoginPageName = "login_page"
	HomePageName  = "home_page"
	OTPPageName   = "otp_page"

	EmailField        = "email_field"
	PasswordField     = "password_field"
	TermsCheckbox     = "terms_checkbox"
	SignInButton      = "sign_in_button"
	GeneralError      = "general_error"
	LoadingIndicator  = "loading_indicator"
	LandingContainer  = "landing_page_container"
	OTPInput          = "otp_input"
	VerifyButton      = "verify_button"
	OTPError          = "otp_error"
	textMessagesEntry = "text_messages"
)

// Locators maps page name to element name to selector. Selectors are passed
// to the browser as-is, so XPath ("//...") and CSS both work.
type Locators struct {
	Pages map[string]map[string]string `yaml:",inline"`

	// Messages maps page name to message key to expected text.
	Messages map[string]map[string]string `yaml:"text_messages,omitempty"`
}

// DefaultLocators returns the built-in locators for the login application.
func DefaultLocators() *Locators {
	return &Locators{
		Pages: map[string]map[string]string{
			LoginPageName: {
				EmailField:       "//input[@id='company-email']",
				PasswordField:    "//input[@type='password']",
				TermsCheckbox:    "//input[@type='checkbox']",
				SignInButton:     "//button[normalize-space()='Sign In']",
				GeneralError:     "//div[contains(@class, 'error')]",
				LoadingIndicator: "//div[contains(@class, 'loading')]",
			},
			OTPPageName: {
				OTPInput:     "//input[@name='otp']",
				VerifyButton: "//button[contains(text(), 'Verify')]",
				OTPError:     "//div[contains(@class, 'otp-error')]",
			},
			HomePageName: {
				LandingContainer: "//div[contains(@class, 'landing-page')]",
			},
		},
		Messages: map[string]map[string]string{},
	}
}

// LoadLocators reads a locator file. A missing file yields the defaults;
// entries present in the file override the matching defaults.
func LoadLocators(path string) (*Locators, error) {
	loc := DefaultLocators()
	if path == "" {
		return loc, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return loc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read locators file: %w", err)
	}

	var file Locators
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse locators file: %w", err)
	}
	loc.merge(&file)
	return loc, nil
}

func (l *Locators) merge(other *Locators) {
	for page, elements := range other.Pages {
		if page == textMessagesEntry {
			continue
		}
		if l.Pages[page] == nil {
			l.Pages[page] = make(map[string]string)
		}
		for name, sel := range elements {
			l.Pages[page][name] = sel
		}
	}
	for page, msgs := range other.Messages {
		if l.Messages[page] == nil {
			l.Messages[page] = make(map[string]string)
		}
		for key, text := range msgs {
			l.Messages[page][key] = text
		}
	}
}

// Get returns the selector for element on page.
func (l *Locators) Get(page, element string) (string, error) {
	sel, ok := l.Pages[page][element]
	if !ok || sel == "" {
		return "", fmt.Errorf("locator not found: %s.%s", page, element)
	}
	return sel, nil
}

// Message returns the expected text for key on page, or "".
func (l *Locators) Message(page, key string) string {
	return l.Messages[page][key]
}

// Elements lists the element names defined for page, sorted.
func (l *Locators) Elements(page string) []string {
	names := make([]string, 0, len(l.Pages[page]))
	for name := range l.Pages[page] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the locators to path as YAML.
func (l *Locators) Save(path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal locators: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write locators file: %w", err)
	}
	return nil
}
