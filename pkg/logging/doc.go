// Package logging provides the subsystem-tagged logger used across echopulse.
//
// It is a thin facade over log/slog. Every entry carries a subsystem attribute
// so reconciliation, hub and storage output can be filtered independently.
//
// # Usage
//
//	logging.Init(logging.Options{Level: logging.LevelInfo, Format: logging.FormatText})
//
//	logging.Info("Scheduler", "Cycle finished in %s", elapsed)
//	logging.Warn("Hub", "Dropping observer %s: %v", id, err)
//	logging.Error("SQLite", err, "Failed to deactivate %s", id)
//
// Before Init is called, Debug and Info are discarded and Warn and Error are
// written to stderr.
package logging
