package memory

import (
	"context"
	"sync"
	"time"

	"github.com/FrenchMajesty/turbo-retry/rate_limit"
)

// usageData tracks token and request consumption
type usageData struct {
	Tokens   int
	Requests int
}

// Memory is an in-memory rate limit backend for single-process scenarios.
// It tracks budgets locally without any inter-process communication.
type Memory struct {
	state         map[string]usageData
	currentMinute time.Time
	limits        map[string]rate_limit.Limit
	now           func() time.Time
	mu            sync.Mutex
}

var _ rate_limit.Backend = (*Memory)(nil)

// NewBackend creates a new in-memory backend. Keys without a limit are unbounded.
func NewBackend(limits map[string]rate_limit.Limit) *Memory {
	m := &Memory{
		state:  make(map[string]usageData),
		limits: make(map[string]rate_limit.Limit, len(limits)),
		now:    time.Now,
	}
	for key, limit := range limits {
		m.limits[key] = limit
	}
	m.currentMinute = m.now().Truncate(time.Minute)
	return m
}

// BudgetAvailable returns the available token and request budget for key
func (m *Memory) BudgetAvailable(ctx context.Context, key string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkAndResetMinute()

	usage := m.state[key]
	limit := m.limits[key]
	return rate_limit.Remaining(limit.TPM, usage.Tokens), rate_limit.Remaining(limit.RPM, usage.Requests), nil
}

// RecordConsumption records token and request usage for key
func (m *Memory) RecordConsumption(ctx context.Context, key string, tokens int, requests int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkAndResetMinute()

	usage := m.state[key]
	usage.Tokens += tokens
	usage.Requests += requests
	m.state[key] = usage

	return nil
}

// TryConsume checks and records one request under the same lock
func (m *Memory) TryConsume(ctx context.Context, key string, tokens int) (bool, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkAndResetMinute()

	usage := m.state[key]
	limit := m.limits[key]
	tokensAvailable := rate_limit.Remaining(limit.TPM, usage.Tokens)
	requestsAvailable := rate_limit.Remaining(limit.RPM, usage.Requests)
	if tokensAvailable < tokens || requestsAvailable < 1 {
		return false, tokensAvailable, requestsAvailable, nil
	}

	usage.Tokens += tokens
	usage.Requests++
	m.state[key] = usage
	return true, tokensAvailable, requestsAvailable, nil
}

// TimeUntilReset returns the duration until the next minute boundary
func (m *Memory) TimeUntilReset() time.Duration {
	return rate_limit.UntilNextWindow(m.now())
}

// Limit returns the budget for key
func (m *Memory) Limit(key string) rate_limit.Limit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits[key]
}

// SetLimit overrides the budget for key
func (m *Memory) SetLimit(key string, limit rate_limit.Limit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[key] = limit
}

// Close is a no-op for in-memory backend (no resources to clean up)
func (m *Memory) Close() error {
	return nil
}

// checkAndResetMinute resets state if we're in a new minute
// Note: caller must hold the lock
func (m *Memory) checkAndResetMinute() {
	currentMinute := m.now().Truncate(time.Minute)
	if !m.currentMinute.Equal(currentMinute) {
		m.currentMinute = currentMinute
		m.state = make(map[string]usageData)
	}
}
