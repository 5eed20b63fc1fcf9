// Package quoter computes two-sided quotes per token. Reservation prices
// skew with inventory, the spread scales with an EWMA volatility estimate
// and an external multiplier, and a cost-basis floor keeps long inventory
// from being offered below cost; only when urgency (time to close or
// inventory size) exceeds 0.9 does the floor drop to 1% under cost.
package quoter
