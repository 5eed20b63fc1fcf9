// Package engine runs the strategy event loop: a single consumer draining
// the event queue, updating book mirrors, applying fills to the ledger, and
// revising resting quotes per token.
package engine
