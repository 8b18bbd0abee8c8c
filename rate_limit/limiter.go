package rate_limit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/FrenchMajesty/turbo-retry/utils/logger"
)

// ErrExceedsLimit is returned for a request that needs more tokens than a
// whole window allows, so waiting could never admit it
var ErrExceedsLimit = errors.New("request exceeds rate limit")

// Limiter blocks callers until the backend has budget for their request.
// Safe for concurrent use; admission is left to the backend so limiters in
// other processes sharing it are accounted for.
type Limiter struct {
	backend Backend
	key     string
	logger  logger.Logger
}

// NewLimiter creates a limiter drawing from key's budget on backend
func NewLimiter(backend Backend, key string, l logger.Logger) *Limiter {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &Limiter{
		backend: backend,
		key:     key,
		logger:  l,
	}
}

// Wait blocks until one request of the given token size fits the current
// window, then records it. It returns ctx.Err() when ctx ends first.
func (l *Limiter) Wait(ctx context.Context, tokens int) error {
	limit := l.backend.Limit(l.key)
	if limit.TPM > 0 && tokens > limit.TPM {
		return fmt.Errorf("%w: %d tokens needed, %d per minute allowed", ErrExceedsLimit, tokens, limit.TPM)
	}

	blocked := false
	for {
		admitted, tokensAvailable, requestsAvailable, err := l.backend.TryConsume(ctx, l.key, tokens)
		if err != nil {
			return fmt.Errorf("rate limit budget for %s: %w", l.key, err)
		}
		if admitted {
			return nil
		}

		// Log only once per request
		if !blocked {
			blocked = true
			l.logger.Printf("Rate limit reached for %s (needed %d tokens, %d tokens and %d requests left), waiting %s",
				l.key, tokens, tokensAvailable, requestsAvailable, l.backend.TimeUntilReset().Round(time.Millisecond))
		}

		// Not enough budget, wait until the window resets
		randomStagger := time.Duration(rand.Intn(100)) * time.Millisecond
		timer := time.NewTimer(l.backend.TimeUntilReset() + randomStagger)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
