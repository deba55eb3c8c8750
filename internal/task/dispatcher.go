package task

import "sync"

// Dispatcher runs a function on some execution context. Completion
// callbacks are always delivered through a Dispatcher, never inline.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// GoDispatcher runs every function on its own goroutine. It is the
// default background context for completion callbacks.
type GoDispatcher struct{}

// Dispatch starts fn on a new goroutine.
func (GoDispatcher) Dispatch(fn func()) { go fn() }

// SerialDispatcher runs functions one at a time, in dispatch order, on a
// goroutine it starts on demand. It plays the role of a "main queue" for
// callers that need ordered, non-overlapping callbacks.
type SerialDispatcher struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

// NewSerialDispatcher creates an idle serial dispatcher.
func NewSerialDispatcher() *SerialDispatcher {
	return &SerialDispatcher{}
}

// Dispatch queues fn behind every previously dispatched function.
func (d *SerialDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	d.pending = append(d.pending, fn)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.drain()
}

func (d *SerialDispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.pending) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.pending[0]
		d.pending[0] = nil
		d.pending = d.pending[1:]
		d.mu.Unlock()

		fn()
	}
}
