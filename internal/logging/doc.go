// Package logging configures slog for the daemon and CLI.
//
// It exposes a console handler for interactive use, a JSON handler for
// machine-readable output, attribute helpers shared across packages, and
// context plumbing that stamps task, stage, and correlation identifiers onto
// every record emitted while a pipeline job runs.
package logging
