// Package logger sets up the process-wide JSON slog logger from server
// configuration and carries request-scoped loggers through a context.
package logger
