package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNewFileStore(t *testing.T) {
	t.Run("creates store with custom path", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")

		store, err := NewFileStore(configPath)
		if err != nil {
			t.Fatalf("NewFileStore failed: %v", err)
		}

		if store.Path() != configPath {
			t.Errorf("Expected path %s, got %s", configPath, store.Path())
		}

		if store.IsModified() {
			t.Error("New store should not be modified")
		}
	})

	t.Run("creates store with default path when empty", func(t *testing.T) {
		store, err := NewFileStore("")
		if err != nil {
			t.Fatalf("NewFileStore with empty path failed: %v", err)
		}

		homeDir, _ := os.UserHomeDir()
		expectedPath := filepath.Join(homeDir, ".uiharness", "config.yaml")

		if store.Path() != expectedPath {
			t.Errorf("Expected default path %s, got %s", expectedPath, store.Path())
		}
	})

	t.Run("loads existing config file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `version: "1.0"
sections:
  session:
    base_url: https://staging.example.com
    workers: 2
  credentials:
    valid_user:
      email: qa@example.com
      password: pw
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write test config: %v", err)
		}

		store, err := NewFileStore(configPath)
		if err != nil {
			t.Fatalf("NewFileStore failed: %v", err)
		}

		section, err := store.GetSection("session")
		if err != nil {
			t.Fatalf("GetSection failed: %v", err)
		}
		if section["base_url"] != "https://staging.example.com" {
			t.Errorf("Expected base_url to load, got %v", section["base_url"])
		}
		if section["workers"] != 2 {
			t.Errorf("Expected workers=2 as int, got %v (%T)", section["workers"], section["workers"])
		}

		creds, _ := store.GetSection("credentials")
		user, ok := creds["valid_user"].(map[string]interface{})
		if !ok {
			t.Fatalf("Expected nested mapping, got %T", creds["valid_user"])
		}
		if user["email"] != "qa@example.com" {
			t.Errorf("Unexpected nested value %v", user["email"])
		}
	})

	t.Run("rejects malformed file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, []byte("sections: [not, a, map"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := NewFileStore(configPath); err == nil {
			t.Error("Expected error for malformed YAML")
		}
	})
}

func TestFileStore_Save(t *testing.T) {
	t.Run("saves config to file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		store, _ := NewFileStore(configPath)

		testData := map[string]interface{}{
			"key1": "value1",
			"key2": 42,
		}
		if err := store.SetSection("test_section", testData); err != nil {
			t.Fatalf("SetSection failed: %v", err)
		}

		if err := store.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("Failed to read saved config: %v", err)
		}

		var config fileFormat
		if err := yaml.Unmarshal(data, &config); err != nil {
			t.Fatalf("Saved config is not valid YAML: %v", err)
		}
		if config.Version != "1.0" {
			t.Error("Version not saved correctly")
		}
		if config.Sections["test_section"]["key1"] != "value1" {
			t.Error("Data not saved correctly")
		}

		info, err := os.Stat(configPath)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("Expected private file mode, got %v", info.Mode().Perm())
		}
		if _, err := os.Stat(configPath + ".tmp"); !os.IsNotExist(err) {
			t.Error("Temp file should be renamed away")
		}
	})

	t.Run("creates directory if needed", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")

		store, _ := NewFileStore(configPath)
		store.SetSection("test", map[string]interface{}{"key": "value"})

		if err := store.Save(); err != nil {
			t.Fatalf("Save should create nested directories: %v", err)
		}

		if _, err := os.Stat(filepath.Dir(configPath)); os.IsNotExist(err) {
			t.Error("Directory was not created")
		}
	})

	t.Run("clears modified flag after save", func(t *testing.T) {
		store, _ := NewFileStore(filepath.Join(t.TempDir(), "config.yaml"))
		store.SetSection("test", map[string]interface{}{"key": "value"})

		if !store.IsModified() {
			t.Error("Store should be modified after SetSection")
		}

		if err := store.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		if store.IsModified() {
			t.Error("Store should not be modified after Save")
		}
	})

	t.Run("round trips through Load", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		store, _ := NewFileStore(configPath)
		store.SetSection("browser", map[string]interface{}{
			"args":     []string{"--no-sandbox"},
			"headless": true,
		})
		if err := store.Save(); err != nil {
			t.Fatal(err)
		}

		reloaded, err := NewFileStore(configPath)
		if err != nil {
			t.Fatal(err)
		}
		section, _ := reloaded.GetSection("browser")
		if section["headless"] != true {
			t.Errorf("headless = %v", section["headless"])
		}
		args, ok := section["args"].([]interface{})
		if !ok || len(args) != 1 || args[0] != "--no-sandbox" {
			t.Errorf("args = %#v", section["args"])
		}

		raw, _ := os.ReadFile(configPath)
		if !strings.Contains(string(raw), "sections:") {
			t.Errorf("unexpected layout:\n%s", raw)
		}
	})
}

func TestFileStore_GetSection(t *testing.T) {
	store := &FileStore{
		data: map[string]map[string]interface{}{
			"test": {"key": "value"},
		},
	}

	section, err := store.GetSection("test")
	if err != nil {
		t.Fatalf("GetSection failed: %v", err)
	}
	if section["key"] != "value" {
		t.Error("Wrong data returned")
	}

	// Returned map is a copy
	section["key"] = "changed"
	again, _ := store.GetSection("test")
	if again["key"] != "value" {
		t.Error("GetSection should return a copy")
	}

	missing, err := store.GetSection("nonexistent")
	if err != nil || missing == nil || len(missing) != 0 {
		t.Error("Expected empty map for missing section")
	}
}

func TestFileStore_SetAll(t *testing.T) {
	store := &FileStore{data: make(map[string]map[string]interface{})}

	input := map[string]map[string]interface{}{
		"a": {"k": 1},
		"b": {"k": 2},
	}
	if err := store.SetAll(input); err != nil {
		t.Fatalf("SetAll failed: %v", err)
	}

	input["a"]["k"] = 99
	all, _ := store.GetAll()
	if all["a"]["k"] != 1 || all["b"]["k"] != 2 {
		t.Errorf("SetAll should deep copy, got %v", all)
	}
	if !store.IsModified() {
		t.Error("Store should be modified after SetAll")
	}
}
