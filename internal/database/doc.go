// Package database is the optional Postgres sink for fills and position
// snapshots. Rows are batched in memory and flushed on a ticker; duplicate
// keys are dropped with ON CONFLICT DO NOTHING so replays are harmless.
package database
