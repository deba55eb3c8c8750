package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(kind events.Kind, id uuid.UUID) *events.OperationEvent {
	return events.NewOperationEvent(kind, id, 3, "fetch")
}

func TestNewCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()

	c, err := NewCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, c)

	_, err = NewCollector(reg)
	assert.Error(t, err, "registering the same metrics twice must fail")
}

func TestCollector_Lifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, c.HandleEvent(ctx, newEvent(events.KindAdmitted, id)))
	require.NoError(t, c.HandleEvent(ctx, newEvent(events.KindStarted, id)))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.admitted.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.running.WithLabelValues("3")))

	finished := newEvent(events.KindFinished, id)
	finished.Outcome = "success"
	finished.Duration = 250 * time.Millisecond
	require.NoError(t, c.HandleEvent(ctx, finished))

	assert.Equal(t, 0.0, testutil.ToFloat64(c.running.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("3", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollector_FinishedWithoutStart(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	finished := newEvent(events.KindFinished, uuid.New())
	finished.Outcome = "cancelled"
	require.NoError(t, c.HandleEvent(context.Background(), finished))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("3", "cancelled")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.running.WithLabelValues("3")), "operations that never ran do not touch the gauge")
}

func TestCollector_AdmissionAndRetryCounters(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.HandleEvent(ctx, newEvent(events.KindDeduplicated, uuid.New())))
	require.NoError(t, c.HandleEvent(ctx, newEvent(events.KindRejected, uuid.New())))
	require.NoError(t, c.HandleEvent(ctx, newEvent(events.KindRetried, uuid.New())))
	require.NoError(t, c.HandleEvent(ctx, newEvent(events.KindRetried, uuid.New())))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.deduplicated.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejected.WithLabelValues("3")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.retries.WithLabelValues("3")))
}

func TestCollector_WithEmitter(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	emitter := events.NewInMemoryEventEmitter(testLogger())
	emitter.RegisterHandler(c)

	require.NoError(t, emitter.EmitEvent(context.Background(), newEvent(events.KindAdmitted, uuid.New())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.admitted.WithLabelValues("3")))
}
