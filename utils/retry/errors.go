package retry

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryExhausted is matched by every error returned after all attempts failed
	ErrRetryExhausted = errors.New("retry exhausted")

	// ErrCancelled is matched by every error returned for a call that was
	// superseded by a newer call, cancelled through Cancel, or whose context ended
	ErrCancelled = errors.New("operation cancelled")
)

// RetryExhaustedError is returned when the first attempt and every retry failed.
// Err is the error of the final attempt; History keeps the error of each attempt
// in order, the last entry being Err.
type RetryExhaustedError struct {
	Name     string
	Attempts int
	Err      error
	History  []error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", e.Name, e.Attempts, e.Err)
}

// Unwrap exposes both ErrRetryExhausted and the last underlying error
func (e *RetryExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Err}
}

// failureMessage is the context string handed to the error reporter
func failureMessage(name string, attempts int) string {
	return fmt.Sprintf("Failed to execute %s after %d attempts", name, attempts)
}

// cancelledError builds the error for a call that will not run any further attempts
func cancelledError(name string, cause error) error {
	if cause != nil && !errors.Is(cause, ErrCancelled) {
		return fmt.Errorf("%s: %w: %w", name, ErrCancelled, cause)
	}
	return fmt.Errorf("%s: %w", name, ErrCancelled)
}
