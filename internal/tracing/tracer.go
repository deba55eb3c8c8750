package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans produced by this package.
const InstrumentationName = "github.com/shakurocom/iOS-Toolbox-sub000/internal/tracing"

// Span names
const (
	SpanOperationRun     = "operation.run"
	SpanOperationSkipped = "operation.skipped"
	SpanGroupRetry       = "group.retry"
)

// Tracer is an events.EventHandler that opens a span when an operation
// starts and ends it when the operation finishes.
type Tracer struct {
	tracer trace.Tracer

	// mu guards spans, keyed by operation ID
	mu    sync.Mutex
	spans map[uuid.UUID]trace.Span
}

// NewTracer creates a Tracer using a tracer from tp.
func NewTracer(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(InstrumentationName),
		spans:  make(map[uuid.UUID]trace.Span),
	}
}

// HandleEvent implements events.EventHandler.
func (t *Tracer) HandleEvent(ctx context.Context, event *events.OperationEvent) error {
	switch event.Kind {
	case events.KindStarted:
		_, span := t.tracer.Start(ctx, SpanOperationRun,
			trace.WithTimestamp(event.CreatedAt),
			trace.WithAttributes(operationAttributes(event)...))
		t.mu.Lock()
		t.spans[event.OperationID] = span
		t.mu.Unlock()

	case events.KindFinished:
		t.mu.Lock()
		span, ok := t.spans[event.OperationID]
		delete(t.spans, event.OperationID)
		t.mu.Unlock()

		if !ok {
			// Finished without running: cancelled in the queue or
			// propagated from a strong dependency.
			_, span = t.tracer.Start(ctx, SpanOperationSkipped,
				trace.WithTimestamp(event.CreatedAt),
				trace.WithAttributes(operationAttributes(event)...))
		}
		span.SetAttributes(attribute.String("operation.outcome", event.Outcome))
		if event.Error != "" {
			span.SetStatus(codes.Error, event.Error)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End(trace.WithTimestamp(endTime(event)))

	case events.KindRetried:
		_, span := t.tracer.Start(ctx, SpanGroupRetry,
			trace.WithTimestamp(event.CreatedAt),
			trace.WithAttributes(operationAttributes(event)...))
		span.SetAttributes(
			attribute.Int("group.attempt", event.Attempt),
			attribute.String("group.previous_outcome", event.Outcome),
		)
		span.End()
	}

	return nil
}

// Open returns the number of spans still waiting for a finished event.
func (t *Tracer) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

func operationAttributes(event *events.OperationEvent) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("operation.id", event.OperationID.String()),
		attribute.Int("operation.type", event.OperationType),
		attribute.String("operation.name", event.OperationName),
		attribute.Int("operation.priority", event.Priority),
	}
}

func endTime(event *events.OperationEvent) time.Time {
	if event.CreatedAt.IsZero() {
		return time.Now()
	}
	return event.CreatedAt
}
