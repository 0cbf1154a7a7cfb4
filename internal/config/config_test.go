package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if c.Hub.BaseURL == "" || c.Search.PageSize == 0 || c.Cache.MaxQueries == 0 {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.Debounce() <= 0 || c.Cooldown() <= 0 {
		t.Errorf("duration helpers: debounce=%v cooldown=%v", c.Debounce(), c.Cooldown())
	}
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("TEST_MODELS_DIR", "/srv/models")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
version: 1
general:
  models_folder: ${TEST_MODELS_DIR}
hub:
  base_url: https://hub.example.com/
search:
  debounce_ms: 100
  use_seed: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.General.ModelsFolder != "/srv/models" {
		t.Errorf("env not expanded: %q", c.General.ModelsFolder)
	}
	if c.Hub.BaseURL != "https://hub.example.com/" {
		t.Errorf("BaseURL = %q", c.Hub.BaseURL)
	}
	if c.Search.DebounceMS != 100 {
		t.Errorf("DebounceMS = %d", c.Search.DebounceMS)
	}
	if !c.Search.UseSeed {
		t.Error("UseSeed lost")
	}
	// Untouched fields fall back to defaults.
	if c.Search.CooldownSecs != 30 || c.Cache.MaxQueries != 20 {
		t.Errorf("defaults missing: cooldown=%d maxQueries=%d", c.Search.CooldownSecs, c.Cache.MaxQueries)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad version", "version: 9"},
		{"bad level", "logging:\n  level: loud"},
		{"bad format", "logging:\n  format: xml"},
		{"negative debounce", "search:\n  debounce_ms: -1"},
		{"negative cache limit", "cache:\n  max_queries: -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load accepted invalid config")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load succeeded on a missing file")
	}
	if _, err := Load(""); err == nil {
		t.Error("Load succeeded on an empty path")
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got, err := expandTilde("~/models")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "models") {
		t.Errorf("expandTilde = %q", got)
	}
	if got, _ := expandTilde("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
	if got, _ := expandTilde(""); got != "" {
		t.Errorf("empty path changed: %q", got)
	}
}
