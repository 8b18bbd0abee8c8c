package token_counter

import (
	"github.com/stretchr/testify/mock"
)

// MockTokenCounter is a mock implementation of Counter for testing.
type MockTokenCounter struct {
	mock.Mock
}

var _ Counter = (*MockTokenCounter)(nil)

func NewMockTokenCounter() *MockTokenCounter {
	return &MockTokenCounter{}
}

func (m *MockTokenCounter) CountTextTokens(text string) int {
	args := m.Called(text)
	return args.Int(0)
}

func (m *MockTokenCounter) CountPromptTokens(prompt, style string) int {
	args := m.Called(prompt, style)
	return args.Int(0)
}
