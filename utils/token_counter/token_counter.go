package token_counter

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounterImpl counts tokens with a tiktoken encoding
type tokenCounterImpl struct {
	encoder *tiktoken.Tiktoken
}

var _ Counter = (*tokenCounterImpl)(nil)

var encodingBase = "cl100k_base"

// NewTokenCounter creates a new Counter instance
func NewTokenCounter() (*tokenCounterImpl, error) {
	// cl100k_base is shared by the GPT-4 family and the image prompt rewriters
	encoder, err := tiktoken.GetEncoding(encodingBase)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}

	return &tokenCounterImpl{
		encoder: encoder,
	}, nil
}

// CountTextTokens counts tokens in plain text using tiktoken
func (tc *tokenCounterImpl) CountTextTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := tc.encoder.Encode(text, nil, nil)
	return len(tokens)
}

// CountPromptTokens counts the prompt as the generator sends it
func (tc *tokenCounterImpl) CountPromptTokens(prompt, style string) int {
	return tc.CountTextTokens(ComposePrompt(prompt, style))
}

// ComposePrompt appends the style hint to the prompt
func ComposePrompt(prompt, style string) string {
	if style == "" {
		return prompt
	}
	return fmt.Sprintf("%s, in %s style", prompt, style)
}
