package token_counter

// Counter measures prompt sizes in model tokens
type Counter interface {
	// CountTextTokens counts the tokens of plain text
	CountTextTokens(text string) int
	// CountPromptTokens counts the tokens of a prompt as sent, style suffix included
	CountPromptTokens(prompt, style string) int
}
