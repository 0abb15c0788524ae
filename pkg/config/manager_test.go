package config

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// memStore keeps sections in memory.
type memStore struct {
	sections map[string]map[string]interface{}
	loadErr  error
	saveErr  error
	saves    int
}

func newMemStore() *memStore {
	return &memStore{sections: make(map[string]map[string]interface{})}
}

func (s *memStore) Load() error { return s.loadErr }

func (s *memStore) Save() error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	return nil
}

func (s *memStore) GetSection(id string) (map[string]interface{}, error) {
	if data, ok := s.sections[id]; ok {
		return data, nil
	}
	return map[string]interface{}{}, nil
}

func (s *memStore) SetSection(id string, data map[string]interface{}) error {
	s.sections[id] = data
	return nil
}

func (s *memStore) GetAll() (map[string]map[string]interface{}, error) {
	return s.sections, nil
}

func (s *memStore) SetAll(data map[string]map[string]interface{}) error {
	s.sections = data
	return nil
}

// failingSection always fails validation.
type failingSection struct{ *SessionSection }

func (failingSection) ID() string      { return "failing" }
func (failingSection) Validate() error { return errors.New("broken") }

func TestManager_RegisterSection(t *testing.T) {
	store := newMemStore()
	m := NewManager(store)

	if m.Store() != store {
		t.Error("Store() returned wrong store")
	}
	if len(m.GetSections()) != 0 {
		t.Error("new manager should have no sections")
	}

	for _, s := range []Section{NewSessionSection(), NewBrowserSection(), NewCredentialsSection()} {
		if err := m.RegisterSection(s); err != nil {
			t.Fatalf("RegisterSection(%s) failed: %v", s.ID(), err)
		}
	}

	if err := m.RegisterSection(NewBrowserSection()); err == nil {
		t.Error("expected error for duplicate section")
	}

	sections := m.GetSections()
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(sections))
	}
	if sections[0].ID() != SectionIDSession || sections[1].ID() != SectionIDBrowser || sections[2].ID() != SectionIDCredentials {
		t.Error("sections not returned in registration order")
	}

	if _, ok := m.GetSection("nonexistent"); ok {
		t.Error("GetSection should report missing sections")
	}
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored values", func(t *testing.T) {
		store := newMemStore()
		store.sections[SectionIDSession] = map[string]interface{}{"workers": 3, "max_age": "5m"}
		store.sections[SectionIDBrowser] = map[string]interface{}{"engine": "webkit"}

		m := NewManager(store)
		sessionSection, browserSection := NewSessionSection(), NewBrowserSection()
		m.RegisterSection(sessionSection)
		m.RegisterSection(browserSection)

		if err := m.LoadAll(); err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if sessionSection.Workers != 3 || sessionSection.MaxAge.Minutes() != 5 {
			t.Errorf("session not loaded: %+v", sessionSection.Data())
		}
		if browserSection.Engine != "webkit" {
			t.Errorf("engine = %q", browserSection.Engine)
		}
	})

	t.Run("store error", func(t *testing.T) {
		store := newMemStore()
		store.loadErr = fmt.Errorf("disk gone")
		if err := NewManager(store).LoadAll(); err == nil {
			t.Error("expected error from store")
		}
	})

	t.Run("bad value", func(t *testing.T) {
		store := newMemStore()
		store.sections[SectionIDSession] = map[string]interface{}{"workers": "lots"}
		m := NewManager(store)
		m.RegisterSection(NewSessionSection())
		if err := m.LoadAll(); err == nil {
			t.Error("expected error for non-numeric workers")
		}
	})
}

func TestManager_SaveAll(t *testing.T) {
	t.Run("writes every section", func(t *testing.T) {
		store := newMemStore()
		m := NewManager(store)
		m.RegisterSection(NewSessionSection())
		m.RegisterSection(NewBrowserSection())

		if err := m.SaveAll(); err != nil {
			t.Fatalf("SaveAll failed: %v", err)
		}
		if store.saves != 1 {
			t.Errorf("expected one save, got %d", store.saves)
		}
		if store.sections[SectionIDSession]["base_url"] != defaultBaseURL {
			t.Errorf("session not stored: %v", store.sections[SectionIDSession])
		}
		if store.sections[SectionIDBrowser]["engine"] != "chromium" {
			t.Errorf("browser not stored: %v", store.sections[SectionIDBrowser])
		}
	})

	t.Run("validates before saving", func(t *testing.T) {
		store := newMemStore()
		m := NewManager(store)
		m.RegisterSection(failingSection{NewSessionSection()})

		if err := m.SaveAll(); err == nil {
			t.Error("expected validation error")
		}
		if err := m.ValidateAll(); err == nil {
			t.Error("ValidateAll should report the same failure")
		}
		if store.saves != 0 {
			t.Error("invalid config should not be saved")
		}
	})

	t.Run("store error", func(t *testing.T) {
		store := newMemStore()
		store.saveErr = fmt.Errorf("read-only")
		m := NewManager(store)
		m.RegisterSection(NewBrowserSection())
		if err := m.SaveAll(); err == nil {
			t.Error("expected error from store")
		}
	})
}

func TestManager_ResetAll(t *testing.T) {
	m := NewManager(newMemStore())
	m.ResetAll()

	sessionSection := NewSessionSection()
	credentials := NewCredentialsSection()
	m.RegisterSection(sessionSection)
	m.RegisterSection(credentials)

	sessionSection.SetData(map[string]interface{}{"workers": 9})
	credentials.SetData(map[string]interface{}{"valid_user": map[string]interface{}{"email": "a@b.c"}})

	m.ResetAll()

	if sessionSection.Workers != defaultWorkers {
		t.Errorf("workers not reset: %d", sessionSection.Workers)
	}
	if len(credentials.Keys()) != 0 {
		t.Error("credentials not reset")
	}
}

func TestManager_Concurrency(t *testing.T) {
	m := NewManager(newMemStore())
	m.RegisterSection(NewSessionSection())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.GetSection(SectionIDSession)
			m.GetSections()
		}()
		go func(i int) {
			defer wg.Done()
			m.RegisterSection(extraSection(fmt.Sprintf("extra%d", i)))
		}(i)
	}
	wg.Wait()

	if got := len(m.GetSections()); got != 11 {
		t.Errorf("expected 11 sections, got %d", got)
	}
}

type namedSection struct {
	*BrowserSection
	id string
}

func (s namedSection) ID() string { return s.id }

func extraSection(id string) Section {
	return namedSection{BrowserSection: NewBrowserSection(), id: id}
}
