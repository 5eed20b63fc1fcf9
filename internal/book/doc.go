// Package book maintains local L2 order book mirrors fed by feed snapshots
// and per-level updates.
package book
