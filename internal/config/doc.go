// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. It provides
// type-safe access to scheduler, retry, server and telemetry settings
// while keeping configuration details out of the task manager itself.
package config
