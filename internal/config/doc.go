// Package config loads, normalizes, and validates shuttle's TOML
// configuration.
package config
