package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
mode: paper
strategy:
  gamma: 0.8
  spread_pct: 0.03
  max_position: 250
session:
  search_query: "premier league"
  log_dir: logs
  state_file: state.json
logging:
  level: debug
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}

	if cfg.Strategy.Gamma != 0.8 {
		t.Errorf("Gamma = %g, want 0.8", cfg.Strategy.Gamma)
	}
	if cfg.Strategy.MaxPosition != 250 {
		t.Errorf("MaxPosition = %g, want 250", cfg.Strategy.MaxPosition)
	}
	if cfg.Session.SearchQuery != "premier league" {
		t.Errorf("SearchQuery = %q", cfg.Session.SearchQuery)
	}

	// Defaults fill the unset sections.
	if cfg.Strategy.InitialVolatility != DefaultInitialVolatility {
		t.Errorf("InitialVolatility = %g, want default %g", cfg.Strategy.InitialVolatility, DefaultInitialVolatility)
	}
	if cfg.Feed.URL != DefaultFeedURL {
		t.Errorf("Feed.URL = %q, want default", cfg.Feed.URL)
	}
	if cfg.Feed.PingTimeout != 30*time.Second {
		t.Errorf("PingTimeout = %v, want 30s", cfg.Feed.PingTimeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "hunter2")
	path := writeConfig(t, `
database:
  enabled: true
  host: localhost
  name: mm
  user: trader
  password: ${TEST_DB_PASSWORD}
`)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Database.Password != "hunter2" {
		t.Errorf("Password = %q, want hunter2", cfg.Database.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate: %v", err)
	}
	if cfg.Mode != "paper" {
		t.Errorf("Mode = %q, want paper", cfg.Mode)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "turbo" }},
		{"negative gamma", func(c *Config) { c.Strategy.Gamma = -1 }},
		{"spread out of range", func(c *Config) { c.Strategy.SpreadPct = 1.5 }},
		{"zero max position", func(c *Config) { c.Strategy.MaxPosition = 0 }},
		{"bad feed url", func(c *Config) { c.Feed.URL = "http://not-a-ws" }},
		{"bad catalog url", func(c *Config) { c.Catalog.BaseURL = "gamma-api" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"db enabled without host", func(c *Config) { c.Database.Enabled = true; c.Database.Host = "" }},
		{"db min over max", func(c *Config) {
			c.Database.Enabled = true
			c.Database.Host = "h"
			c.Database.Name = "n"
			c.Database.User = "u"
			c.Database.Password = "p"
			c.Database.MinConns = 20
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
