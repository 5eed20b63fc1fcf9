// Package orders tracks resting limit orders. Paper mode simulates fills
// against the local book mirror; live mode forwards to a Venue adapter.
package orders
