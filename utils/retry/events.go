package retry

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAttemptStarted EventType = "attempt_started"
	EventRetrying       EventType = "retrying"
	EventSucceeded      EventType = "succeeded"
	EventExhausted      EventType = "exhausted"
	EventCancelled      EventType = "cancelled"
)

// Event describes one step of an executor call
type Event struct {
	Type      EventType     `json:"type"`
	CallID    string        `json:"call_id"`
	Name      string        `json:"name"`
	Attempt   int           `json:"attempt"`
	Delay     time.Duration `json:"delay,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Outcome is the terminal result of an executor call
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeCancelled Outcome = "cancelled"
)

// Observer receives measurements from an executor.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveAttempt(name string, attempt int)
	ObserveBackoff(name string, delay time.Duration)
	ObserveOutcome(name string, outcome Outcome)
}

// Hooks are optional lifecycle callbacks, invoked synchronously from the call's goroutine.
type Hooks struct {
	// OnRetry runs before each retry with the attempt number (1-based for retries)
	OnRetry func(attempt int)
	// OnSuccess runs when a call succeeds after at least one retry
	OnSuccess func()
	// OnFailure runs once when every attempt failed, with the last error
	OnFailure func(err error)
}

// emitEvent sends an event to the event channel (non-blocking)
func (e *Executor) emitEvent(eventType EventType, callID uuid.UUID, name string, attempt int, delay time.Duration, err error) {
	if e.events == nil {
		return
	}

	event := &Event{
		Type:      eventType,
		CallID:    callID.String(),
		Name:      name,
		Attempt:   attempt,
		Delay:     delay,
		Timestamp: time.Now(),
	}
	if err != nil {
		event.Error = err.Error()
	}

	select {
	case e.events <- event:
	default:
		// Channel full, drop event to avoid blocking the call
	}
}
