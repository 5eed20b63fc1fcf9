package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Mode != "paper" && c.Mode != "live" {
		return fmt.Errorf("mode must be \"paper\" or \"live\", got %q", c.Mode)
	}

	if c.Strategy.Gamma <= 0 {
		return errors.New("strategy.gamma must be > 0")
	}
	if c.Strategy.SpreadPct <= 0 || c.Strategy.SpreadPct >= 1 {
		return errors.New("strategy.spread_pct must be in (0, 1)")
	}
	if c.Strategy.MaxPosition <= 0 {
		return errors.New("strategy.max_position must be > 0")
	}
	if c.Strategy.InitialVolatility <= 0 {
		return errors.New("strategy.initial_volatility must be > 0")
	}

	if c.Session.TopEvents < 1 {
		return errors.New("session.top_events must be >= 1")
	}
	if c.Session.EventIndex < 0 {
		return errors.New("session.event_index must be >= 0")
	}
	if c.Session.LogDir == "" {
		return errors.New("session.log_dir is required")
	}
	if c.Session.StateFile == "" {
		return errors.New("session.state_file is required")
	}

	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		return fmt.Errorf("feed.url must be a ws:// or wss:// URL, got %q", c.Feed.URL)
	}
	if !strings.HasPrefix(c.Catalog.BaseURL, "http://") && !strings.HasPrefix(c.Catalog.BaseURL, "https://") {
		return fmt.Errorf("catalog.base_url must be an http(s) URL, got %q", c.Catalog.BaseURL)
	}

	if c.Database.Enabled {
		if err := c.Database.validate(); err != nil {
			return err
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DatabaseConfig) validate() error {
	if db.Host == "" {
		return errors.New("database.host is required when database.enabled")
	}
	if db.Name == "" {
		return errors.New("database.name is required when database.enabled")
	}
	if db.User == "" {
		return errors.New("database.user is required when database.enabled")
	}
	if db.Password == "" {
		return errors.New("database.password is required when database.enabled")
	}
	if db.MaxConns < 1 {
		return errors.New("database.max_conns must be >= 1")
	}
	if db.MinConns < 0 {
		return errors.New("database.min_conns must be >= 0")
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed max_conns (%d)", db.MinConns, db.MaxConns)
	}
	if db.BatchSize < 1 {
		return errors.New("database.batch_size must be >= 1")
	}
	return nil
}
