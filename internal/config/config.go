package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML schema. Values come from YAML; Validate applies
// defaults only where a zero value would be unusable.
type Config struct {
	Version   int       `yaml:"version"`
	General   General   `yaml:"general"`
	Network   Network   `yaml:"network"`
	Hub       Hub       `yaml:"hub"`
	Search    Search    `yaml:"search"`
	Cache     Cache     `yaml:"cache"`
	Downloads Downloads `yaml:"downloads"`
	Logging   Logging   `yaml:"logging"`
	Metrics   Metrics   `yaml:"metrics"`
}

type General struct {
	DataRoot     string `yaml:"data_root"`     // state.db and metrics live here
	ModelsFolder string `yaml:"models_folder"` // active local model folder, rescanned on download completion
}

type Network struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

type Hub struct {
	BaseURL   string  `yaml:"base_url"` // e.g. https://huggingface.co
	TokenEnv  string  `yaml:"token_env"`
	RateRPS   float64 `yaml:"rate_rps"` // client-side request rate cap
	RateBurst int     `yaml:"rate_burst"`
}

type Search struct {
	DebounceMS   int  `yaml:"debounce_ms"`
	CooldownSecs int  `yaml:"cooldown_secs"` // live-fetch pause after a network failure
	PageSize     int  `yaml:"page_size"`
	UseSeed      bool `yaml:"use_seed"` // merge the bundled seed catalog into trending
}

type Cache struct {
	MaxQueries       int `yaml:"max_queries"`
	MaxPagesPerQuery int `yaml:"max_pages_per_query"`
	MaxItemsPerPage  int `yaml:"max_items_per_page"`
}

type Downloads struct {
	AutoLoad bool `yaml:"auto_load"` // load a model into the app when its download completes
}

type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // human|json
}

type Metrics struct {
	PrometheusTextfile PromTextfile `yaml:"prometheus_textfile"`
}

type PromTextfile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads, parses, expands, and validates a YAML config file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	expanded, err := expandTilde(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	// Expand ${ENV} placeholders before unmarshalling
	b = []byte(os.ExpandEnv(string(b)))
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns a usable configuration for runs without a config file.
func Default() *Config {
	c := &Config{Version: 1}
	home, err := os.UserHomeDir()
	if err == nil {
		c.General.DataRoot = filepath.Join(home, ".config", "modelcat")
	}
	_ = c.Validate()
	return c
}

func (c *Config) expandPaths() error {
	var err error
	if c.General.DataRoot, err = expandTilde(c.General.DataRoot); err != nil {
		return err
	}
	if c.General.ModelsFolder, err = expandTilde(c.General.ModelsFolder); err != nil {
		return err
	}
	if c.Metrics.PrometheusTextfile.Path, err = expandTilde(c.Metrics.PrometheusTextfile.Path); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Version != 0 && c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", c.Version)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "human", "json":
	default:
		return fmt.Errorf("logging.format invalid: %s", c.Logging.Format)
	}
	if c.Network.TimeoutSeconds < 0 || c.Search.DebounceMS < 0 || c.Search.CooldownSecs < 0 {
		return errors.New("durations must be >= 0")
	}
	if c.Cache.MaxQueries < 0 || c.Cache.MaxPagesPerQuery < 0 || c.Cache.MaxItemsPerPage < 0 {
		return errors.New("cache limits must be >= 0")
	}

	// Defaults for anything unset.
	if c.Network.TimeoutSeconds == 0 {
		c.Network.TimeoutSeconds = 30
	}
	if c.Network.UserAgent == "" {
		c.Network.UserAgent = "modelcat"
	}
	if c.Hub.BaseURL == "" {
		c.Hub.BaseURL = "https://huggingface.co"
	}
	if c.Hub.RateRPS == 0 {
		c.Hub.RateRPS = 4
	}
	if c.Hub.RateBurst == 0 {
		c.Hub.RateBurst = 8
	}
	if c.Search.DebounceMS == 0 {
		c.Search.DebounceMS = 350
	}
	if c.Search.CooldownSecs == 0 {
		c.Search.CooldownSecs = 30
	}
	if c.Search.PageSize == 0 {
		c.Search.PageSize = 30
	}
	if c.Cache.MaxQueries == 0 {
		c.Cache.MaxQueries = 20
	}
	if c.Cache.MaxPagesPerQuery == 0 {
		c.Cache.MaxPagesPerQuery = 10
	}
	if c.Cache.MaxItemsPerPage == 0 {
		c.Cache.MaxItemsPerPage = 30
	}
	return nil
}

// Debounce returns the configured debounce as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Search.DebounceMS) * time.Millisecond
}

// Cooldown returns the configured live-fetch cool-down as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Search.CooldownSecs) * time.Second
}

func expandTilde(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return h, nil
	}
	return filepath.Join(h, p[2:]), nil
}
