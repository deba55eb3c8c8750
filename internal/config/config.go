package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Retry     RetryConfig     `mapstructure:"retry" validate:"required"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains the HTTP status server and logging settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// SchedulerConfig sizes the task manager.
type SchedulerConfig struct {
	MaxConcurrentOperations int `mapstructure:"max_concurrent_operations" validate:"required,gt=0"`
	// QueueSize of zero leaves the queue unbounded
	QueueSize int `mapstructure:"queue_size" validate:"gte=0"`
	// WorkerCount of zero matches MaxConcurrentOperations. Otherwise it
	// must be at least MaxConcurrentOperations.
	WorkerCount int `mapstructure:"worker_count" validate:"omitempty,gtefield=MaxConcurrentOperations"`

	// CoalesceTypes lists operation types whose duplicate submissions join
	// the instance already queued
	CoalesceTypes []int `mapstructure:"coalesce_types" validate:"dive,gte=0"`
	// SerializeTypes lists operation types that never run concurrently
	// with a queued instance of the same type
	SerializeTypes []int `mapstructure:"serialize_types" validate:"dive,gte=0"`
}

// RetryConfig is the default backoff applied to retried operation groups.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"required,gt=0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"gte=0"`
	Multiplier     float64       `mapstructure:"multiplier" validate:"gte=1"`
	Jitter         string        `mapstructure:"jitter" validate:"oneof=none full equal"`
}

// TelemetryConfig toggles metrics and tracing.
type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	TracingEnabled bool `mapstructure:"tracing_enabled"`
	// ServiceName is the otel service name attached to spans
	ServiceName string `mapstructure:"service_name" validate:"required_if=TracingEnabled true"`
}
