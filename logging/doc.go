// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. The default construction path produces JSON output on
// stdout; NoOpLogger is the safe zero-configuration fallback used throughout
// the core when no logger is supplied.
package logging
