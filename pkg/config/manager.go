package config

import (
	"fmt"
	"sync"
)

// Section is one named block of configuration.
type Section interface {
	// ID returns the key the section is stored under
	ID() string

	// Title returns a human readable name
	Title() string

	// Description explains what the section configures
	Description() string

	// Data returns the section as plain values for persistence
	Data() map[string]interface{}

	// SetData updates the section from persisted values
	SetData(data map[string]interface{}) error

	// Validate checks the current values
	Validate() error

	// Reset restores the defaults
	Reset()
}

// Manager coordinates registered sections and their store.
type Manager struct {
	mu       sync.RWMutex
	store    Store
	sections map[string]Section
	order    []string
}

// NewManager creates a manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sections: make(map[string]Section),
	}
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// RegisterSection adds a section. IDs must be unique.
func (m *Manager) RegisterSection(section Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := section.ID()
	if _, exists := m.sections[id]; exists {
		return fmt.Errorf("section %q already registered", id)
	}

	m.sections[id] = section
	m.order = append(m.order, id)
	return nil
}

// GetSection returns the section with the given ID.
func (m *Manager) GetSection(id string) (Section, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	section, ok := m.sections[id]
	return section, ok
}

// GetSections returns all sections in registration order.
func (m *Manager) GetSections() []Section {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sections := make([]Section, 0, len(m.order))
	for _, id := range m.order {
		sections = append(sections, m.sections[id])
	}
	return sections
}

// LoadAll reloads the store and pushes its data into every section.
func (m *Manager) LoadAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.store.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, id := range m.order {
		data, err := m.store.GetSection(id)
		if err != nil {
			return fmt.Errorf("failed to read section %s: %w", id, err)
		}
		if err := m.sections[id].SetData(data); err != nil {
			return fmt.Errorf("failed to apply section %s: %w", id, err)
		}
	}
	return nil
}

// SaveAll validates every section, copies it into the store and saves.
func (m *Manager) SaveAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		section := m.sections[id]
		if err := section.Validate(); err != nil {
			return fmt.Errorf("invalid section %s: %w", id, err)
		}
		if err := m.store.SetSection(id, section.Data()); err != nil {
			return fmt.Errorf("failed to store section %s: %w", id, err)
		}
	}

	if err := m.store.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ValidateAll validates every section and returns the first failure.
func (m *Manager) ValidateAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		if err := m.sections[id].Validate(); err != nil {
			return fmt.Errorf("invalid section %s: %w", id, err)
		}
	}
	return nil
}

// ResetAll restores every section to its defaults.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		m.sections[id].Reset()
	}
}
