package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/api"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/config"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/events"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/metrics"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/task"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/tracing"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Telemetry
	registry        *prometheus.Registry
	collector       *metrics.Collector
	tracer          *tracing.Tracer
	shutdownTracing func()

	// Event system
	eventEmitter *events.InMemoryEventEmitter

	// Scheduling
	manager    *task.TaskManager
	operations *api.OperationHandler
}

// newApplication wires telemetry, the event emitter and the task manager.
// Spans are written to traceOut when tracing is enabled.
func newApplication(cfg *config.Config, logger *slog.Logger, traceOut io.Writer) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger.With("component", "event_emitter"))

	if cfg.Telemetry.MetricsEnabled {
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector, err := metrics.NewCollector(app.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}
		app.collector = collector
		app.eventEmitter.RegisterHandler(collector)
		logger.Info("metrics collector registered")
	}

	tp, shutdown, err := tracing.NewProvider(cfg.Telemetry.ServiceName, cfg.Telemetry.TracingEnabled, traceOut)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	app.shutdownTracing = shutdown
	app.tracer = tracing.NewTracer(tp)
	app.eventEmitter.RegisterHandler(app.tracer, events.KindStarted, events.KindFinished, events.KindRetried)

	policy := retryPolicy(cfg.Retry)
	if err := policy.Validate(); err != nil {
		shutdown()
		return nil, fmt.Errorf("invalid retry configuration: %w", err)
	}

	app.manager = task.NewTaskManager(
		taskManagerConfig(cfg.Scheduler),
		logger.With("component", "task_manager"),
		task.WithEventEmitter(app.eventEmitter),
		task.WithAdmissionPolicy(admissionPolicy(cfg.Scheduler)),
	)
	app.operations = api.NewOperationHandler(app.manager, policy, logger.With("component", "operation_handler"))

	logger.Info("application initialized successfully",
		"metrics_enabled", cfg.Telemetry.MetricsEnabled,
		"tracing_enabled", cfg.Telemetry.TracingEnabled)
	return app, nil
}

// Run starts the task manager and serves the HTTP API until ctx is
// cancelled or a shutdown signal arrives.
func (app *application) Run(ctx context.Context) error {
	app.manager.Start()

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.manager != nil {
		app.manager.Stop()
	}
	if app.shutdownTracing != nil {
		app.shutdownTracing()
	}
	app.logger.Info("application shutdown completed")
}

func taskManagerConfig(cfg config.SchedulerConfig) task.TaskManagerConfig {
	return task.TaskManagerConfig{
		MaxConcurrentOperations: cfg.MaxConcurrentOperations,
		QueueSize:               cfg.QueueSize,
		WorkerCount:             cfg.WorkerCount,
	}
}

func retryPolicy(cfg config.RetryConfig) task.RetryPolicy {
	return task.RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Multiplier:     cfg.Multiplier,
		Jitter:         task.JitterKind(cfg.Jitter),
	}
}

// admissionPolicy coalesces and serializes only the configured types.
// With neither list set every submission is admitted as is.
func admissionPolicy(cfg config.SchedulerConfig) task.AdmissionPolicy {
	var policies []task.AdmissionPolicy
	if len(cfg.CoalesceTypes) > 0 {
		policies = append(policies, task.CoalesceByType(operationTypes(cfg.CoalesceTypes)...))
	}
	if len(cfg.SerializeTypes) > 0 {
		policies = append(policies, task.SerializeByType(false, operationTypes(cfg.SerializeTypes)...))
	}
	if len(policies) == 0 {
		return task.AdmitAll
	}
	return task.ChainPolicies(policies...)
}

func operationTypes(types []int) []task.OperationType {
	out := make([]task.OperationType, len(types))
	for i, t := range types {
		out[i] = task.OperationType(t)
	}
	return out
}
