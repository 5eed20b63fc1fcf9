// Package feed maintains the WebSocket subscription to the CLOB market
// channel and translates book snapshots and level updates into queue events.
package feed
