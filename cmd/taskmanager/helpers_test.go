package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/shakurocom/iOS-Toolbox-sub000/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// testConfig mirrors the loaded defaults with fast retries.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "debug", ShutdownTimeout: time.Second},
		Scheduler: config.SchedulerConfig{
			MaxConcurrentOperations: 2,
		},
		Retry: config.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     10 * time.Millisecond,
			Multiplier:     2,
			Jitter:         "none",
		},
		Telemetry: config.TelemetryConfig{
			MetricsEnabled: true,
			ServiceName:    "taskmanager-test",
		},
	}
}

