// Package state persists positions and aggregate trading statistics as a
// JSON file so a restarted session resumes where the last one stopped.
package state
