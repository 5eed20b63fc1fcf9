package feed

import (
	"errors"
	"time"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// Config configures the market data client.
type Config struct {
	URL               string        // WebSocket URL for the market channel
	WriteTimeout      time.Duration // Write deadline for sends
	PingInterval      time.Duration // Keepalive ping cadence
	PingTimeout       time.Duration // Max silence before the connection is stale
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
}

// DefaultConfig returns sensible defaults for the public market channel.
func DefaultConfig() Config {
	return Config{
		URL:               "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		WriteTimeout:      5 * time.Second,
		PingInterval:      10 * time.Second,
		PingTimeout:       30 * time.Second,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}

// subscribeCommand is the market-channel subscription request.
type subscribeCommand struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// wireLevel is one book level; prices and sizes arrive as strings.
type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wireBook is a full book snapshot. Older payloads use buys/sells instead of
// bids/asks.
type wireBook struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	Buys      []wireLevel `json:"buys"`
	Sells     []wireLevel `json:"sells"`
	Timestamp string      `json:"timestamp"`
	Hash      string      `json:"hash"`
}

// wirePriceChange is one level delta within a price_change event.
type wirePriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

// wirePriceChangeEvent groups the level deltas of one price_change message.
// Each delta is forwarded as its own PriceLevelUpdate event.
type wirePriceChangeEvent struct {
	EventType    string            `json:"event_type"`
	AssetID      string            `json:"asset_id"`
	Market       string            `json:"market"`
	PriceChanges []wirePriceChange `json:"price_changes"`
	// Flat form: some payloads carry a single change inline.
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`
}

// Stats reports feed counters for the status loop.
type Stats struct {
	Connected      bool
	Reconnects     int
	MessagesTotal  int
	DecodeFailures int
}
