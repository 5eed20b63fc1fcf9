// Package metrics holds the in-process counters reported by the status loop.
package metrics

import (
	"sync"

	"github.com/rickgao/polymarket-mm/internal/model"
)

// Counters accumulates event and order counts. All methods are safe for
// concurrent use; a nil receiver check is the caller's responsibility.
type Counters struct {
	mu              sync.Mutex
	events          map[model.EventKind]uint64
	fills           uint64
	ordersPlaced    uint64
	ordersCancelled uint64
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{events: make(map[model.EventKind]uint64)}
}

// IncEvent counts one dispatched event of the given kind.
func (c *Counters) IncEvent(kind model.EventKind) {
	c.mu.Lock()
	c.events[kind]++
	c.mu.Unlock()
}

// IncFill counts one applied fill.
func (c *Counters) IncFill() {
	c.mu.Lock()
	c.fills++
	c.mu.Unlock()
}

// IncOrderPlaced counts one accepted order placement.
func (c *Counters) IncOrderPlaced() {
	c.mu.Lock()
	c.ordersPlaced++
	c.mu.Unlock()
}

// IncOrderCancelled counts one order cancellation.
func (c *Counters) IncOrderCancelled() {
	c.mu.Lock()
	c.ordersCancelled++
	c.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Events          map[model.EventKind]uint64
	TotalEvents     uint64
	Fills           uint64
	OrdersPlaced    uint64
	OrdersCancelled uint64
}

// Snapshot copies the current counts.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make(map[model.EventKind]uint64, len(c.events))
	var total uint64
	for kind, n := range c.events {
		events[kind] = n
		total += n
	}
	return Snapshot{
		Events:          events,
		TotalEvents:     total,
		Fills:           c.fills,
		OrdersPlaced:    c.ordersPlaced,
		OrdersCancelled: c.ordersCancelled,
	}
}
