package config

import "time"

// Config is the root configuration for a trader instance.
type Config struct {
	Mode     string         `yaml:"mode"` // "paper" or "live"
	Strategy StrategyConfig `yaml:"strategy"`
	Session  SessionConfig  `yaml:"session"`
	Feed     FeedConfig     `yaml:"feed"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StrategyConfig holds the quoting parameters.
type StrategyConfig struct {
	Gamma             float64 `yaml:"gamma"`              // Risk aversion
	SpreadPct         float64 `yaml:"spread_pct"`         // Base quoted spread (bid to ask) as a fraction of mid
	MaxPosition       float64 `yaml:"max_position"`       // Max position value per token (USD)
	InitialVolatility float64 `yaml:"initial_volatility"` // Volatility seed before EWMA warms up
}

// SessionConfig selects the event to trade and where session artifacts go.
type SessionConfig struct {
	SearchQuery string `yaml:"search_query"` // Catalog search term; empty browses top events
	EventID     string `yaml:"event_id"`     // Pin a specific event, skipping search
	EventIndex  int    `yaml:"event_index"`  // Pick the Nth search result (0-based)
	TopEvents   int    `yaml:"top_events"`   // Catalog browse depth when search_query is empty
	LogDir      string `yaml:"log_dir"`      // Root for per-session CSV directories
	StateFile   string `yaml:"state_file"`   // JSON position persistence path
}

// FeedConfig holds the market data WebSocket settings.
type FeedConfig struct {
	URL               string        `yaml:"url"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
}

// CatalogConfig holds the Gamma API client settings.
type CatalogConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DatabaseConfig holds the optional Postgres sink settings.
type DatabaseConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Name          string        `yaml:"name"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	SSLMode       string        `yaml:"ssl_mode"`
	MaxConns      int           `yaml:"max_conns"`
	MinConns      int           `yaml:"min_conns"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig controls the root slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
