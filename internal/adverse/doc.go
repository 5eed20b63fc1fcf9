// Package adverse measures fill quality and widens quoted spreads on tokens
// where resting orders are systematically picked off ahead of price moves.
package adverse
