// Package logging provides structured logging for Switchyard.
//
// It wraps log/slog with service defaults and config-driven level and
// format selection. Components receive a *Logger (or the small Logger
// interface their package defines) rather than using a package-level
// default, which keeps log attribution and testing straightforward.
package logging
