package retry

import (
	"fmt"
	"math"
	"time"
)

// Config holds the retry settings of a single Executor. It is fixed for the
// lifetime of the executor.
type Config struct {
	MaxRetries        int           `yaml:"max_retries"`
	Delay             time.Duration `yaml:"delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		Delay:             1 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Validate checks that the configuration can drive an executor
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.Delay <= 0 {
		return fmt.Errorf("delay must be > 0, got %s", c.Delay)
	}
	if c.BackoffMultiplier < 1 || math.IsNaN(c.BackoffMultiplier) || math.IsInf(c.BackoffMultiplier, 0) {
		return fmt.Errorf("backoff multiplier must be a finite number >= 1, got %v", c.BackoffMultiplier)
	}
	return nil
}

// Attempts returns the total number of times an operation may run
func (c Config) Attempts() int {
	return c.MaxRetries + 1
}

// Backoff returns the wait before the given attempt.
// Attempt 0 never waits; attempt n waits Delay * BackoffMultiplier^(n-1).
// There is no jitter and no upper bound, so very large MaxRetries values grow
// the wait without limit (saturating at the largest representable duration).
func Backoff(c Config, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(c.Delay) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if delay >= math.MaxInt64 || math.IsInf(delay, 1) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
