// Package events provides lifecycle events for scheduled operations.
//
// The task manager emits an OperationEvent whenever an operation is
// admitted, coalesced, started, finished or retried. Observers such as the
// metrics collector and the tracer register as handlers, so the scheduler
// never depends on them directly.
//
// The primary components are:
// - OperationEvent: one lifecycle transition of one operation
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
