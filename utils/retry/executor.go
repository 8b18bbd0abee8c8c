package retry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/google/uuid"
)

// DefaultOperationName labels calls made without a name
const DefaultOperationName = "operation"

// Reporter receives the final error of calls that exhausted their retries.
// The context string reads "Failed to execute {name} after {n} attempts".
type Reporter interface {
	Report(ctx context.Context, err error, context string)
}

// State is the observable progress of the executor's current call
type State struct {
	IsRetrying bool `json:"is_retrying"`
	RetryCount int  `json:"retry_count"`
}

// Waiter blocks for the backoff delay, returning early with an error when ctx ends
type Waiter func(ctx context.Context, delay time.Duration) error

// Executor runs operations with exponential backoff retries.
//
// An executor tracks one live call at a time: starting a call supersedes the
// previous one, whose pending wait is interrupted and which settles with
// ErrCancelled at its next checkpoint. Use one executor per independent stream
// of work.
type Executor struct {
	config   Config
	reporter Reporter
	logger   logger.Logger
	hooks    Hooks
	observer Observer
	events   chan<- *Event
	wait     Waiter

	// generation identifies the live call; bumped under mu
	generation atomic.Uint64

	mu     sync.Mutex // protects state and cancel
	state  State
	cancel context.CancelFunc
}

// NewExecutor creates an executor for the given configuration
func NewExecutor(config Config, opts ...Option) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}

	e := &Executor{
		config: config,
		logger: logger.NewNoopLogger(),
		wait:   sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Config returns the executor's configuration
func (e *Executor) Config() Config {
	return e.config
}

// State returns a snapshot of the current call's retry state
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Cancel stops the live call, if any, from scheduling further waits or attempts.
// An operation that is already running is not interrupted beyond the
// cancellation of the context it was given.
func (e *Executor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation.Add(1)
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.state = State{}
}

// Do runs an operation that produces no value. See Execute.
func (e *Executor) Do(ctx context.Context, name string, operation func(ctx context.Context) error) error {
	_, err := Execute(ctx, e, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

// Execute runs operation on e, retrying failures up to MaxRetries times.
//
// The operation may run several times and must be safe to repeat. It receives a
// context that is cancelled when the call is superseded or cancelled. On
// exhaustion the returned error is a *RetryExhaustedError wrapping the last
// failure, and it is handed to the executor's reporter. Cancelled calls return
// an error matching ErrCancelled and are not reported.
func Execute[T any](ctx context.Context, e *Executor, name string, operation func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if name == "" {
		name = DefaultOperationName
	}

	callCtx, cancel, gen := e.begin(ctx)
	defer cancel()
	defer e.finish(gen)

	callID := uuid.New()
	attempts := e.config.Attempts()
	var history []error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if callCtx.Err() != nil {
			return zero, e.abort(ctx, gen, callID, name, attempt)
		}

		e.setState(gen, State{IsRetrying: attempt > 0, RetryCount: attempt})

		if attempt > 0 {
			if e.hooks.OnRetry != nil {
				e.hooks.OnRetry(attempt)
			}

			delay := Backoff(e.config, attempt)
			e.emitEvent(EventRetrying, callID, name, attempt, delay, history[len(history)-1])
			if e.observer != nil {
				e.observer.ObserveBackoff(name, delay)
			}
			e.logger.Printf("%s: retry attempt %d/%d after %v delay", name, attempt+1, attempts, delay)

			if err := e.wait(callCtx, delay); err != nil || callCtx.Err() != nil {
				return zero, e.abort(ctx, gen, callID, name, attempt)
			}
		}

		e.emitEvent(EventAttemptStarted, callID, name, attempt, 0, nil)
		if e.observer != nil {
			e.observer.ObserveAttempt(name, attempt)
		}

		value, err := safeCall(callCtx, name, operation)
		if err == nil {
			if e.isCurrent(gen) {
				if attempt > 0 {
					e.logger.Printf("%s: succeeded on attempt %d/%d", name, attempt+1, attempts)
					if e.hooks.OnSuccess != nil {
						e.hooks.OnSuccess()
					}
				}
				e.setState(gen, State{})
			}
			e.emitEvent(EventSucceeded, callID, name, attempt, 0, nil)
			if e.observer != nil {
				e.observer.ObserveOutcome(name, OutcomeSucceeded)
			}
			return value, nil
		}

		history = append(history, err)

		// A failure observed after supersession or cancellation is not retried or reported
		if callCtx.Err() != nil {
			return zero, e.abort(ctx, gen, callID, name, attempt)
		}

		if attempt == e.config.MaxRetries {
			return zero, e.exhaust(ctx, gen, callID, name, history)
		}
	}

	// unreachable: the final attempt either returns a value or exhausts
	return zero, e.abort(ctx, gen, callID, name, e.config.MaxRetries)
}

// begin supersedes the live call and registers a new one
func (e *Executor) begin(ctx context.Context) (context.Context, context.CancelFunc, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	gen := e.generation.Add(1)
	if e.cancel != nil {
		e.cancel()
	}

	callCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	return callCtx, cancel, gen
}

// finish drops the cancel func of a call that is still live
func (e *Executor) finish(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.generation.Load() == gen {
		e.cancel = nil
	}
}

func (e *Executor) isCurrent(gen uint64) bool {
	return e.generation.Load() == gen
}

// setState updates the observable state only while gen is the live call
func (e *Executor) setState(gen uint64, state State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.generation.Load() == gen {
		e.state = state
	}
}

// abort settles a call as cancelled. A call ended by its caller's context is
// still live, so its state is reset; a superseded call leaves state alone.
func (e *Executor) abort(ctx context.Context, gen uint64, callID uuid.UUID, name string, attempt int) error {
	err := cancelledError(name, ctx.Err())
	e.setState(gen, State{})

	e.emitEvent(EventCancelled, callID, name, attempt, 0, err)
	if e.observer != nil {
		e.observer.ObserveOutcome(name, OutcomeCancelled)
	}
	e.logger.Printf("%s: cancelled at attempt %d/%d", name, attempt+1, e.config.Attempts())
	return err
}

// exhaust reports and returns the terminal failure of a live call
func (e *Executor) exhaust(ctx context.Context, gen uint64, callID uuid.UUID, name string, history []error) error {
	lastErr := history[len(history)-1]
	attempts := e.config.Attempts()
	exhausted := &RetryExhaustedError{
		Name:     name,
		Attempts: attempts,
		Err:      lastErr,
		History:  history,
	}

	e.logger.Printf("%s: failed after %d attempts, last error: %v", name, attempts, lastErr)
	if e.reporter != nil {
		e.reporter.Report(ctx, lastErr, failureMessage(name, attempts))
	}
	if e.hooks.OnFailure != nil {
		e.hooks.OnFailure(lastErr)
	}
	e.setState(gen, State{})

	e.emitEvent(EventExhausted, callID, name, attempts-1, 0, lastErr)
	if e.observer != nil {
		e.observer.ObserveOutcome(name, OutcomeExhausted)
	}
	return exhausted
}

// safeCall runs one attempt, turning a panic into an attempt failure
func safeCall[T any](ctx context.Context, name string, operation func(ctx context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()

	if operation == nil {
		return value, fmt.Errorf("%s: operation is nil", name)
	}
	return operation(ctx)
}

// sleepContext waits for delay or until ctx is done
func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
