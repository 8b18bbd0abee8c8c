package retry

import (
	"github.com/FrenchMajesty/turbo-retry/utils/logger"
)

// Option configures an Executor
type Option func(*Executor)

// WithReporter sets the collaborator notified when a call exhausts its retries
func WithReporter(r Reporter) Option {
	return func(e *Executor) {
		e.reporter = r
	}
}

// WithLogger sets the logger used for retry progress messages
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHooks sets the lifecycle callbacks
func WithHooks(h Hooks) Option {
	return func(e *Executor) {
		e.hooks = h
	}
}

// WithObserver sets the metrics observer
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithEvents sets a channel that receives call events. Sends never block;
// events are dropped while the channel is full.
func WithEvents(ch chan<- *Event) Option {
	return func(e *Executor) {
		e.events = ch
	}
}

// WithWaiter replaces the backoff wait, mostly for tests
func WithWaiter(w Waiter) Option {
	return func(e *Executor) {
		if w != nil {
			e.wait = w
		}
	}
}
