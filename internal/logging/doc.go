// Package logging constructs the slog loggers used across meetscribe and
// provides the attribute helpers shared by all components.
package logging
