// Package bus provides the event queue connecting the market data feed and
// order manager to the single-consumer strategy engine.
package bus
