// Package daemon wires the long-running process: it owns the task store, the
// pipeline dispatcher, the maintenance jobs, and the HTTP API, and enforces
// single-instance execution with a lock file.
package daemon
