// Package tracing records an OpenTelemetry span for every executed
// operation, driven by task manager lifecycle events.
package tracing
