// Package metrics exports task manager lifecycle events as Prometheus
// metrics. A Collector is registered as an events.EventHandler so the
// scheduler itself never depends on Prometheus.
package metrics
