package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// NewDefaultManager creates a manager over store with the browser, session
// and credentials sections registered.
func NewDefaultManager(store Store) (*Manager, error) {
	manager := NewManager(store)

	sections := []Section{
		NewBrowserSection(),
		NewSessionSection(),
		NewCredentialsSection(),
	}
	for _, section := range sections {
		if err := manager.RegisterSection(section); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

// Initialize creates and initializes the global configuration manager.
// This should be called once at application startup.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	// Create file store
	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager, err := NewDefaultManager(store)
	if err != nil {
		return err
	}

	// Load configuration
	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}

	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// GetBrowser returns the browser section from global config.
// Returns nil if config is not initialized.
func GetBrowser() *BrowserSection {
	return globalSection[*BrowserSection](SectionIDBrowser)
}

// GetSession returns the session section from global config.
// Returns nil if config is not initialized.
func GetSession() *SessionSection {
	return globalSection[*SessionSection](SectionIDSession)
}

// GetCredentials returns the credentials section from global config.
// Returns nil if config is not initialized.
func GetCredentials() *CredentialsSection {
	return globalSection[*CredentialsSection](SectionIDCredentials)
}

func globalSection[T Section](id string) T {
	var zero T
	if !IsInitialized() {
		return zero
	}
	return sectionAs[T](Global(), id)
}

func sectionAs[T Section](m *Manager, id string) T {
	var zero T
	section, ok := m.GetSection(id)
	if !ok {
		return zero
	}
	typed, ok := section.(T)
	if !ok {
		return zero
	}
	return typed
}
