package token_counter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCounter_CountTextTokens(t *testing.T) {
	counter, err := NewTokenCounter()
	require.NoError(t, err)

	assert.Equal(t, 0, counter.CountTextTokens(""))
	assert.Greater(t, counter.CountTextTokens("a lighthouse at dusk"), 0)

	// Roughly proportional to content length
	long := strings.Repeat("word ", 1000)
	assert.Greater(t, counter.CountTextTokens(long), 900)
}

func TestTokenCounter_CountPromptTokens(t *testing.T) {
	counter, err := NewTokenCounter()
	require.NoError(t, err)

	plain := counter.CountPromptTokens("a lighthouse at dusk", "")
	styled := counter.CountPromptTokens("a lighthouse at dusk", "watercolor")

	assert.Equal(t, counter.CountTextTokens("a lighthouse at dusk"), plain)
	assert.Greater(t, styled, plain)
}

func TestComposePrompt(t *testing.T) {
	assert.Equal(t, "a cat", ComposePrompt("a cat", ""))
	assert.Equal(t, "a cat, in pixel art style", ComposePrompt("a cat", "pixel art"))
}

func TestNewTokenCounter(t *testing.T) {
	counter, err := NewTokenCounter()
	assert.NoError(t, err)
	assert.NotNil(t, counter)
	assert.NotNil(t, counter.encoder)
}

func TestMockTokenCounter(t *testing.T) {
	m := NewMockTokenCounter()
	m.On("CountPromptTokens", "a cat", "").Return(7)

	var counter Counter = m
	assert.Equal(t, 7, counter.CountPromptTokens("a cat", ""))
	m.AssertExpectations(t)
}
