// Package dataset looks up login credentials and expected messages by key.
//
// Keys follow the data file layout (valid_user, invalid_user,
// empty_credentials, ...). Sources can be chained so credentials from the
// config file win over the data file.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/uiharness/pkg/session"
)

// Well-known credential keys.
const (
	ValidUser        = "valid_user"
	InvalidUser      = "invalid_user"
	EmptyCredentials = "empty_credentials"
)

// Well-known expected message keys.
const (
	MsgLoginSuccess       = "login_success"
	MsgInvalidCredentials = "invalid_credentials"
	MsgEmptyEmail         = "empty_email"
	MsgEmptyPassword      = "empty_password"
	MsgTermsRequired      = "terms_required"
	MsgInvalidOTP         = "invalid_otp"
)

// DefaultOTPCode is the verification code the test environment accepts.
const DefaultOTPCode = "99999"

// Source resolves a credential key.
type Source interface {
	Credential(key string) (session.Credential, error)
}

// CredentialEntry is one credential as written in YAML. AcceptTerms defaults
// to true.
type CredentialEntry struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	AcceptTerms *bool  `yaml:"accept_terms,omitempty"`
}

// Credential converts the entry.
func (e CredentialEntry) Credential() session.Credential {
	accept := true
	if e.AcceptTerms != nil {
		accept = *e.AcceptTerms
	}
	return session.Credential{Email: e.Email, Password: e.Password, AcceptTerms: accept}
}

// Scenario is a data-driven login case.
type Scenario struct {
	Name           string `yaml:"test_name"`
	Description    string `yaml:"description,omitempty"`
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
	AcceptTerms    bool   `yaml:"accept_terms"`
	ExpectedResult string `yaml:"expected_result"`
}

// Credential returns the scenario's credential.
func (s Scenario) Credential() session.Credential {
	return session.Credential{Email: s.Email, Password: s.Password, AcceptTerms: s.AcceptTerms}
}

// Data is the content of a test data file.
type Data struct {
	LoginCredentials map[string]CredentialEntry `yaml:"login_credentials"`
	TestScenarios    map[string][]Scenario      `yaml:"test_scenarios,omitempty"`
	ExpectedMessages map[string]string          `yaml:"expected_messages"`

	// OTPCode is entered on the verification page after Sign In.
	OTPCode string `yaml:"otp_code,omitempty"`
}

// Default returns the built-in test data.
func Default() *Data {
	return &Data{
		LoginCredentials: map[string]CredentialEntry{
			ValidUser:        {Email: "qa.user@example.com", Password: "change-me"},
			InvalidUser:      {Email: "invalid@example.com", Password: "WrongPassword"},
			EmptyCredentials: {Email: "", Password: ""},
		},
		TestScenarios: map[string][]Scenario{},
		ExpectedMessages: map[string]string{
			MsgLoginSuccess:       "Login successful",
			MsgInvalidCredentials: "Invalid credentials",
			MsgEmptyEmail:         "Email is required",
			MsgEmptyPassword:      "Password is required",
			MsgTermsRequired:      "Please accept terms and conditions",
			MsgInvalidOTP:         "Invalid OTP",
		},
		OTPCode: DefaultOTPCode,
	}
}

// FileSource serves credentials and messages from a test data file layered
// over Default.
type FileSource struct {
	path string
	data *Data
}

// Load reads path. A missing file yields the built-in data.
func Load(path string) (*FileSource, error) {
	data := Default()
	if path == "" {
		return &FileSource{data: data}, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &FileSource{path: path, data: data}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read test data file: %w", err)
	}

	var file Data
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse test data file: %w", err)
	}
	data.merge(&file)
	return &FileSource{path: path, data: data}, nil
}

// NewSource wraps already-loaded data.
func NewSource(data *Data) *FileSource {
	if data == nil {
		data = Default()
	}
	return &FileSource{data: data}
}

func (d *Data) merge(other *Data) {
	for k, v := range other.LoginCredentials {
		d.LoginCredentials[k] = v
	}
	for k, v := range other.TestScenarios {
		d.TestScenarios[k] = v
	}
	for k, v := range other.ExpectedMessages {
		d.ExpectedMessages[k] = v
	}
	if other.OTPCode != "" {
		d.OTPCode = other.OTPCode
	}
}

// Path returns the file the source was loaded from, if any.
func (s *FileSource) Path() string {
	return s.path
}

// Credential returns the credential for key. Unknown keys are configuration
// errors.
func (s *FileSource) Credential(key string) (session.Credential, error) {
	entry, ok := s.data.LoginCredentials[key]
	if !ok {
		return session.Credential{}, unknownKey(key)
	}
	return entry.Credential(), nil
}

// Keys lists the credential keys, sorted.
func (s *FileSource) Keys() []string {
	keys := make([]string, 0, len(s.data.LoginCredentials))
	for k := range s.data.LoginCredentials {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExpectedMessage returns the message for key, or "".
func (s *FileSource) ExpectedMessage(key string) string {
	return s.data.ExpectedMessages[key]
}

// OTPCode returns the one-time verification code.
func (s *FileSource) OTPCode() string {
	return s.data.OTPCode
}

// FailureMessages returns every expected message except the success one,
// sorted. These are the texts that mean a login was rejected.
func (s *FileSource) FailureMessages() []string {
	msgs := make([]string, 0, len(s.data.ExpectedMessages))
	for k, v := range s.data.ExpectedMessages {
		if k == MsgLoginSuccess || v == "" {
			continue
		}
		msgs = append(msgs, v)
	}
	sort.Strings(msgs)
	return msgs
}

// Scenarios returns the data-driven scenarios of the given kind
// (positive_tests, negative_tests).
func (s *FileSource) Scenarios(kind string) []Scenario {
	return s.data.TestScenarios[kind]
}

// Save writes the data to path as YAML, creating parent directories.
func (s *FileSource) Save(path string) error {
	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to marshal test data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write test data file: %w", err)
	}
	return nil
}

// MapSource serves credentials from a plain map, such as the credentials
// section of the config file.
type MapSource map[string]CredentialEntry

// Credential implements Source.
func (m MapSource) Credential(key string) (session.Credential, error) {
	entry, ok := m[key]
	if !ok {
		return session.Credential{}, unknownKey(key)
	}
	return entry.Credential(), nil
}

// Chain asks each source in order and returns the first hit. Only unknown-key
// errors fall through to the next source.
type Chain []Source

// Credential implements Source.
func (c Chain) Credential(key string) (session.Credential, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		cred, err := src.Credential(key)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, session.ErrConfiguration) {
			return session.Credential{}, err
		}
	}
	return session.Credential{}, unknownKey(key)
}

func unknownKey(key string) error {
	return &session.Error{
		Kind:    session.KindConfiguration,
		Op:      "credential",
		Message: fmt.Sprintf("unknown credential key %q", key),
	}
}
