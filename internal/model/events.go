package model

import "time"

// EventKind discriminates queue events.
type EventKind int

const (
	KindBookSnapshot EventKind = iota
	KindPriceLevelUpdate
	KindOrderFill
	KindOrderRejected
	KindTimerTick
	KindShutdown
)

// String returns a short label for logging.
func (k EventKind) String() string {
	switch k {
	case KindBookSnapshot:
		return "book_snapshot"
	case KindPriceLevelUpdate:
		return "price_level_update"
	case KindOrderFill:
		return "order_fill"
	case KindOrderRejected:
		return "order_rejected"
	case KindTimerTick:
		return "timer_tick"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event is a single unit of work on the strategy queue. Exactly the fields
// for the event's kind are populated; the rest are zero.
type Event struct {
	Kind       EventKind
	TokenID    TokenID
	ReceivedAt time.Time

	// Book snapshot
	Bids []PriceLevel
	Asks []PriceLevel

	// Price level update
	Side  Side
	Price float64
	Size  float64

	// Order fill / rejection
	OrderID   string
	FillPrice float64
	FillSize  float64
	FillSide  Side
	Reason    string
}

// NewBookSnapshot builds a full-book replacement event.
func NewBookSnapshot(token TokenID, bids, asks []PriceLevel) Event {
	return Event{Kind: KindBookSnapshot, TokenID: token, Bids: bids, Asks: asks, ReceivedAt: time.Now()}
}

// NewPriceLevelUpdate builds a single-level change event. Size 0 removes the level.
func NewPriceLevelUpdate(token TokenID, side Side, price, size float64) Event {
	return Event{Kind: KindPriceLevelUpdate, TokenID: token, Side: side, Price: price, Size: size, ReceivedAt: time.Now()}
}

// NewOrderFill builds a fill event emitted by the order manager.
func NewOrderFill(token TokenID, orderID string, side Side, price, size float64) Event {
	return Event{Kind: KindOrderFill, TokenID: token, OrderID: orderID, FillSide: side, FillPrice: price, FillSize: size, ReceivedAt: time.Now()}
}

// NewOrderRejected builds a rejection event.
func NewOrderRejected(token TokenID, orderID, reason string) Event {
	return Event{Kind: KindOrderRejected, TokenID: token, OrderID: orderID, Reason: reason, ReceivedAt: time.Now()}
}

// NewTimerTick builds the 1 Hz housekeeping event.
func NewTimerTick() Event {
	return Event{Kind: KindTimerTick, ReceivedAt: time.Now()}
}

// NewShutdown builds the terminal event that stops the engine loop.
func NewShutdown() Event {
	return Event{Kind: KindShutdown, ReceivedAt: time.Now()}
}
