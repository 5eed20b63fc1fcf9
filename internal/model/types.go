package model

import "time"

// -----------------------------------------------------------------------------
// Trading Types
// -----------------------------------------------------------------------------

// TokenID identifies a single outcome token on the CLOB (decimal string).
type TokenID = string

// Side is the direction of an order or fill.
type Side int

const (
	Buy Side = iota
	Sell
)

// String returns the canonical wire/CSV form of the side.
func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// OrderStatus tracks an order through its lifecycle.
type OrderStatus int

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCancelled
)

// String returns the CSV form of the status.
func (s OrderStatus) String() string {
	switch s {
	case OrderFilled:
		return "FILLED"
	case OrderCancelled:
		return "CANCELLED"
	default:
		return "OPEN"
	}
}

// TradingMode selects paper simulation or live venue routing.
type TradingMode int

const (
	Paper TradingMode = iota
	Live
)

// Order is a resting limit order tracked by the order manager.
type Order struct {
	OrderID    string      // Primary key (ord-<uuid>)
	TokenID    TokenID     // Outcome token the order rests on
	Side       Side        // Buy or Sell
	Price      float64     // Limit price (dollars, 0.01-0.99)
	Size       float64     // Total size in tokens
	FilledSize float64     // Cumulative filled size
	Status     OrderStatus // Lifecycle status
	CreatedAt  time.Time   // Placement time
}

// Quote is a two-sided price proposal produced by the quoter.
type Quote struct {
	BidPrice  float64       // Bid limit price, 0 when the bid side is withheld
	BidSize   float64       // Bid size in tokens
	AskPrice  float64       // Ask limit price, 0 when the ask side is withheld
	AskSize   float64       // Ask size in tokens
	TTL       time.Duration // How long the quote may rest before requote
	CreatedAt time.Time     // Generation time
}

// MarketMetadata describes the market a token belongs to.
type MarketMetadata struct {
	Question    string    // Market question (e.g., "Will X beat Y?")
	Outcome     string    // Outcome label for this token (e.g., "Yes")
	MarketID    string    // Catalog market ID
	ConditionID string    // On-chain condition ID shared by sibling tokens
	CloseTime   time.Time // Scheduled close, zero when unknown
}

// Name returns the human-readable "question - outcome" label used in logs.
func (m MarketMetadata) Name() string {
	if m.Question == "" {
		return m.Outcome
	}
	if m.Outcome == "" {
		return m.Question
	}
	return m.Question + " - " + m.Outcome
}

// CancelReason explains why an order was pulled.
type CancelReason string

const (
	CancelQuoteUpdate    CancelReason = "QUOTE_UPDATE"
	CancelTTLExpired     CancelReason = "TTL_EXPIRED"
	CancelInventoryLimit CancelReason = "INVENTORY_LIMIT"
	CancelShutdown       CancelReason = "SHUTDOWN"
	CancelManual         CancelReason = "MANUAL"
	CancelUnknown        CancelReason = "UNKNOWN"
)

// PriceLevel is one level of an L2 book side.
type PriceLevel struct {
	Price float64 // Price in dollars
	Size  float64 // Resting size at this price
}

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// MarketInfo is one market within a catalog event.
type MarketInfo struct {
	MarketID    string   // Catalog ID
	ConditionID string   // On-chain condition ID
	Question    string   // Market question
	Description string   // Long description
	Slug        string   // URL slug
	Active      bool     // Accepting orders
	Volume      float64  // Lifetime volume (USD)
	Liquidity   float64  // Current liquidity (USD)
	Tokens      []string // CLOB token IDs, one per outcome
	Outcomes    []string // Outcome labels, parallel to Tokens
	EndDate     string   // ISO-8601 close time, empty when unknown
}

// EventInfo is a catalog event grouping one or more markets.
type EventInfo struct {
	EventID     string       // Catalog ID
	Title       string       // Display title
	Slug        string       // URL slug
	Description string       // Long description
	StartDate   string       // ISO-8601
	EndDate     string       // ISO-8601
	Category    string       // Category label
	Active      bool         // Accepting orders
	Closed      bool         // Resolved or expired
	Volume      float64      // Lifetime volume (USD)
	Liquidity   float64      // Current liquidity (USD)
	Markets     []MarketInfo // Member markets
}
