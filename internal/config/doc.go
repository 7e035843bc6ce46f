// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and CLI. Construct a Config once at startup via Load
// and pass it by reference into component constructors.
package config
