package metrics

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/events"
)

// Namespace prefixes every metric name.
const Namespace = "taskmanager"

// Collector turns operation events into Prometheus metrics.
type Collector struct {
	admitted     *prometheus.CounterVec
	deduplicated *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	finished     *prometheus.CounterVec
	retries      *prometheus.CounterVec
	running      *prometheus.GaugeVec
	duration     *prometheus.HistogramVec

	// mu guards inFlight, the operations counted in running
	mu       sync.Mutex
	inFlight map[uuid.UUID]string
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "operations",
			Name:      "admitted_total",
			Help:      "Operations admitted to the queue, by operation type.",
		}, []string{"type"}),
		deduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "operations",
			Name:      "deduplicated_total",
			Help:      "Submissions coalesced into an already queued operation.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "operations",
			Name:      "rejected_total",
			Help:      "Submissions refused because the queue was full or closed.",
		}, []string{"type"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "operations",
			Name:      "finished_total",
			Help:      "Operations finished, by operation type and outcome.",
		}, []string{"type", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "groups",
			Name:      "retries_total",
			Help:      "Retry rounds started by retry controllers, by primary operation type.",
		}, []string{"type"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "operations",
			Name:      "running",
			Help:      "Operations currently executing.",
		}, []string{"type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "operations",
			Name:      "duration_seconds",
			Help:      "Time from start to finish of executed operations.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"type"}),
		inFlight: make(map[uuid.UUID]string),
	}

	for _, collector := range []prometheus.Collector{
		c.admitted, c.deduplicated, c.rejected, c.finished, c.retries, c.running, c.duration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return c, nil
}

// HandleEvent implements events.EventHandler.
func (c *Collector) HandleEvent(_ context.Context, event *events.OperationEvent) error {
	typ := strconv.Itoa(event.OperationType)

	switch event.Kind {
	case events.KindAdmitted:
		c.admitted.WithLabelValues(typ).Inc()
	case events.KindDeduplicated:
		c.deduplicated.WithLabelValues(typ).Inc()
	case events.KindRejected:
		c.rejected.WithLabelValues(typ).Inc()
	case events.KindRetried:
		c.retries.WithLabelValues(typ).Inc()
	case events.KindStarted:
		c.mu.Lock()
		c.inFlight[event.OperationID] = typ
		c.mu.Unlock()
		c.running.WithLabelValues(typ).Inc()
	case events.KindFinished:
		c.finished.WithLabelValues(typ, event.Outcome).Inc()

		c.mu.Lock()
		_, wasRunning := c.inFlight[event.OperationID]
		delete(c.inFlight, event.OperationID)
		c.mu.Unlock()
		if wasRunning {
			c.running.WithLabelValues(typ).Dec()
			c.duration.WithLabelValues(typ).Observe(event.Duration.Seconds())
		}
	}

	return nil
}
