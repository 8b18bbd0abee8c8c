// Package imagegen generates images through an OpenAI-compatible images API.
// Every request runs through a retry executor; a newer request from the same
// service supersedes the one in flight.
package imagegen

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/FrenchMajesty/turbo-retry/utils/token_counter"
)

const (
	DefaultWidth  = 1024
	DefaultHeight = 1024

	// DefaultMaxPromptTokens bounds prompts before they reach the API
	DefaultMaxPromptTokens = 1000
)

var (
	ErrEmptyPrompt     = errors.New("prompt is required")
	ErrUnsupportedSize = errors.New("unsupported image size")
	ErrPromptTooLong   = errors.New("prompt exceeds token budget")
)

// supportedSizes lists the dimensions accepted by the images API
var supportedSizes = map[string]bool{
	"256x256":   true,
	"512x512":   true,
	"1024x1024": true,
	"1792x1024": true,
	"1024x1792": true,
}

// Request describes one image to generate
type Request struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Size returns the WxH size string, defaulting missing dimensions
func (r Request) Size() string {
	width, height := r.Width, r.Height
	if width == 0 {
		width = DefaultWidth
	}
	if height == 0 {
		height = DefaultHeight
	}
	return fmt.Sprintf("%dx%d", width, height)
}

// FullPrompt returns the prompt with its style hint
func (r Request) FullPrompt() string {
	return token_counter.ComposePrompt(strings.TrimSpace(r.Prompt), strings.TrimSpace(r.Style))
}

// Validate checks the prompt and size. When counter is non-nil the prompt must
// also fit in maxTokens.
func (r Request) Validate(counter token_counter.Counter, maxTokens int) error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if r.Width < 0 || r.Height < 0 || !supportedSizes[r.Size()] {
		return fmt.Errorf("%w: %s", ErrUnsupportedSize, r.Size())
	}
	if counter != nil && maxTokens > 0 {
		if n := counter.CountPromptTokens(strings.TrimSpace(r.Prompt), strings.TrimSpace(r.Style)); n > maxTokens {
			return fmt.Errorf("%w: %d tokens, limit %d", ErrPromptTooLong, n, maxTokens)
		}
	}
	return nil
}

// Image is a generated image
type Image struct {
	URL           string    `json:"url,omitempty"`
	B64JSON       string    `json:"b64_json,omitempty"`
	RevisedPrompt string    `json:"revised_prompt,omitempty"`
	Model         string    `json:"model,omitempty"`
	Size          string    `json:"size"`
	CreatedAt     time.Time `json:"created_at"`
}

// RequestError is an API failure that another attempt cannot fix
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("image request rejected (%d): %v", e.StatusCode, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRetryableStatus reports whether an HTTP status is worth another attempt:
// server errors, timeouts and rate limits
func IsRetryableStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status < 400 || status >= 500
}

// IsRetryable reports whether err may succeed on another attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return IsRetryableStatus(reqErr.StatusCode)
	}
	return true
}
