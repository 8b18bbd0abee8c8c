package rate_limit

import (
	"context"
	"math"
	"time"
)

// Backend defines the interface for rate limit persistence backends.
// Implementations can use different mechanisms (in-memory, Redis, etc.) to
// track and enforce budgets across single or multiple processes. Budgets are
// tracked per key, typically the name of an upstream API.
type Backend interface {
	// BudgetAvailable returns the token and request budget left for key in
	// the current window (one minute).
	BudgetAvailable(ctx context.Context, key string) (tokensAvailable int, requestsAvailable int, err error)

	// RecordConsumption records token and request usage for key.
	RecordConsumption(ctx context.Context, key string, tokens int, requests int) error

	// TryConsume admits one request of the given token size when both budgets
	// allow it, recording it in the same step so concurrent callers (other
	// processes included) cannot overshoot the limit. The budgets returned are
	// those seen before the request.
	TryConsume(ctx context.Context, key string, tokens int) (admitted bool, tokensAvailable int, requestsAvailable int, err error)

	// TimeUntilReset returns the duration until the next window starts.
	TimeUntilReset() time.Duration

	// Limit returns the budget configured for key.
	Limit(key string) Limit

	// SetLimit overrides the budget for key.
	SetLimit(key string, limit Limit)

	// Close cleans up any resources held by the backend (connections, etc.)
	Close() error
}

// Remaining returns budget minus used, floored at zero. An unbounded budget
// always has math.MaxInt remaining.
func Remaining(budget int, used int) int {
	if budget <= 0 {
		return math.MaxInt
	}
	if used >= budget {
		return 0
	}
	return budget - used
}

// UntilNextWindow returns the time from now to the next minute boundary
func UntilNextWindow(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}
