// Package model defines shared data types used across the market maker.
//
// Conventions:
//   - Prices: float64 dollars in [0.01, 0.99] for quotes, rounded to the cent
//   - Sizes: float64 token counts
//   - Timestamps: time.Time, formatted as ISO-8601 UTC at the edges
//   - IDs: decimal-string token IDs from the CLOB, ord-<uuid> order IDs
package model
