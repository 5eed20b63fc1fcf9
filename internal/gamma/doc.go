// Package gamma is the catalog client for the Gamma events API. It pages
// active events, filters them down to tradeable match-style markets, and
// resolves the CLOB token IDs the feed subscribes to.
package gamma
