// Package ledger tracks per-token positions, average cost, and realized and
// unrealized PnL from the stream of fills.
package ledger
