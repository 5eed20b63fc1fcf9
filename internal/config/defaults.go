package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultMode              = "paper"
	DefaultGamma             = 0.1
	DefaultSpreadPct         = 0.02
	DefaultMaxPosition       = 1000.0
	DefaultInitialVolatility = 0.05

	DefaultTopEvents = 10
	DefaultLogDir    = "trading_logs"
	DefaultStateFile = "trading_state.json"

	DefaultFeedURL           = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultWriteTimeout      = 5 * time.Second
	DefaultPingInterval      = 10 * time.Second
	DefaultPingTimeout       = 30 * time.Second
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 60 * time.Second

	DefaultCatalogURL     = "https://gamma-api.polymarket.com"
	DefaultCatalogTimeout = 30 * time.Second
	DefaultMaxRetries     = 3

	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 10
	DefaultMinConns      = 2
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = DefaultMode
	}

	if c.Strategy.Gamma == 0 {
		c.Strategy.Gamma = DefaultGamma
	}
	if c.Strategy.SpreadPct == 0 {
		c.Strategy.SpreadPct = DefaultSpreadPct
	}
	if c.Strategy.MaxPosition == 0 {
		c.Strategy.MaxPosition = DefaultMaxPosition
	}
	if c.Strategy.InitialVolatility == 0 {
		c.Strategy.InitialVolatility = DefaultInitialVolatility
	}

	if c.Session.TopEvents == 0 {
		c.Session.TopEvents = DefaultTopEvents
	}
	if c.Session.LogDir == "" {
		c.Session.LogDir = DefaultLogDir
	}
	if c.Session.StateFile == "" {
		c.Session.StateFile = DefaultStateFile
	}

	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.ReconnectBaseWait == 0 {
		c.Feed.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.Feed.ReconnectMaxWait == 0 {
		c.Feed.ReconnectMaxWait = DefaultReconnectMaxWait
	}

	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = DefaultCatalogURL
	}
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultCatalogTimeout
	}
	if c.Catalog.MaxRetries == 0 {
		c.Catalog.MaxRetries = DefaultMaxRetries
	}

	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}
	if c.Database.BatchSize == 0 {
		c.Database.BatchSize = DefaultBatchSize
	}
	if c.Database.FlushInterval == 0 {
		c.Database.FlushInterval = DefaultFlushInterval
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
