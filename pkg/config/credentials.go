package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/entrhq/uiharness/pkg/dataset"
)

const (
	// SectionIDCredentials is the identifier for the credentials section
	SectionIDCredentials = "credentials"
)

// CredentialsSection holds login credentials keyed like the test data file
// (valid_user, invalid_user, ...). Entries here take precedence over the
// data file.
type CredentialsSection struct {
	users map[string]dataset.CredentialEntry
	mu    sync.RWMutex
}

// NewCredentialsSection creates an empty credentials section.
func NewCredentialsSection() *CredentialsSection {
	return &CredentialsSection{users: make(map[string]dataset.CredentialEntry)}
}

// ID returns the section identifier.
func (s *CredentialsSection) ID() string {
	return SectionIDCredentials
}

// Title returns the section title.
func (s *CredentialsSection) Title() string {
	return "Credentials"
}

// Description returns the section description.
func (s *CredentialsSection) Description() string {
	return "Login credentials by key. These override the test data file."
}

// Data returns the current configuration data.
func (s *CredentialsSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := make(map[string]any, len(s.users))
	for key, entry := range s.users {
		user := map[string]any{
			"email":    entry.Email,
			"password": entry.Password,
		}
		if entry.AcceptTerms != nil {
			user["accept_terms"] = *entry.AcceptTerms
		}
		data[key] = user
	}
	return data
}

// SetData replaces the credentials from the provided data.
func (s *CredentialsSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	users := make(map[string]dataset.CredentialEntry, len(data))
	for key, value := range data {
		fields, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("invalid value type for credentials.%s: expected mapping, got %T", key, value)
		}

		var entry dataset.CredentialEntry
		for field, v := range fields {
			var err error
			switch field {
			case "email":
				entry.Email, err = asString(key+".email", v)
			case "password":
				entry.Password, err = asString(key+".password", v)
			case "accept_terms":
				var accept bool
				accept, err = asBool(key+".accept_terms", v)
				entry.AcceptTerms = &accept
			}
			if err != nil {
				return err
			}
		}
		users[key] = entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
	return nil
}

// Validate validates the current configuration.
func (s *CredentialsSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key := range s.users {
		if key == "" {
			return fmt.Errorf("credential key cannot be empty")
		}
	}
	return nil
}

// Reset removes all credentials.
func (s *CredentialsSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]dataset.CredentialEntry)
}

// Set stores a credential under key.
func (s *CredentialsSection) Set(key string, entry dataset.CredentialEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[key] = entry
}

// Keys lists the configured keys, sorted.
func (s *CredentialsSection) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.users))
	for k := range s.users {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Source returns a snapshot of the credentials as a dataset.Source.
func (s *CredentialsSection) Source() dataset.MapSource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := make(dataset.MapSource, len(s.users))
	for k, v := range s.users {
		src[k] = v
	}
	return src
}
