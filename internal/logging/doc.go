// Package logging builds the slog loggers used across shuttle and holds
// the shared attribute helpers and field name conventions.
package logging
