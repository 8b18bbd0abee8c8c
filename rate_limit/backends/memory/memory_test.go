package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/FrenchMajesty/turbo-retry/rate_limit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TracksConsumption(t *testing.T) {
	ctx := context.Background()
	m := NewBackend(map[string]rate_limit.Limit{"openai": {RPM: 10, TPM: 1000}})

	require.NoError(t, m.RecordConsumption(ctx, "openai", 250, 1))
	require.NoError(t, m.RecordConsumption(ctx, "openai", 250, 1))

	tokens, requests, err := m.BudgetAvailable(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, 500, tokens)
	assert.Equal(t, 8, requests)
}

func TestMemory_ResetsEachMinute(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	m := NewBackend(map[string]rate_limit.Limit{"openai": {RPM: 1}})
	m.now = func() time.Time { return now }
	m.currentMinute = now.Truncate(time.Minute)

	require.NoError(t, m.RecordConsumption(ctx, "openai", 0, 1))
	_, requests, _ := m.BudgetAvailable(ctx, "openai")
	assert.Zero(t, requests)
	assert.Equal(t, 30*time.Second, m.TimeUntilReset())

	now = now.Add(31 * time.Second)
	_, requests, _ = m.BudgetAvailable(ctx, "openai")
	assert.Equal(t, 1, requests)
}

func TestMemory_UnknownKeyIsUnbounded(t *testing.T) {
	m := NewBackend(nil)

	tokens, requests, err := m.BudgetAvailable(context.Background(), "mock")
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, tokens)
	assert.Equal(t, math.MaxInt, requests)
}

func TestMemory_SetLimit(t *testing.T) {
	m := NewBackend(nil)
	m.SetLimit("openai", rate_limit.Limit{RPM: 3})

	assert.Equal(t, rate_limit.Limit{RPM: 3}, m.Limit("openai"))
	assert.NoError(t, m.Close())
}

func TestMemory_TryConsume(t *testing.T) {
	ctx := context.Background()
	m := NewBackend(map[string]rate_limit.Limit{"openai": {RPM: 2, TPM: 100}})

	admitted, _, _, err := m.TryConsume(ctx, "openai", 80)
	require.NoError(t, err)
	assert.True(t, admitted)

	admitted, tokens, requests, err := m.TryConsume(ctx, "openai", 30)
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.Equal(t, 20, tokens)
	assert.Equal(t, 1, requests)

	admitted, _, _, err = m.TryConsume(ctx, "openai", 20)
	require.NoError(t, err)
	assert.True(t, admitted)

	admitted, _, requests, err = m.TryConsume(ctx, "openai", 0)
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.Zero(t, requests)
}
