// Package tradelog writes per-session CSV streams: orders, fills, position
// snapshots, raw price updates, and periodic per-market quality summaries.
package tradelog
