package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FrenchMajesty/turbo-retry/rate_limit"
	"github.com/FrenchMajesty/turbo-retry/utils/retry"
	"github.com/FrenchMajesty/turbo-retry/utils/token_counter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func noWait(ctx context.Context, delay time.Duration) error {
	return ctx.Err()
}

var testRetry = retry.Config{MaxRetries: 2, Delay: 10 * time.Millisecond, BackoffMultiplier: 2}

func newTestService(t *testing.T, gen Generator, opts ...retry.Option) *Service {
	t.Helper()
	opts = append([]retry.Option{retry.WithWaiter(noWait)}, opts...)
	service, err := NewService(gen, nil, ServiceConfig{Retry: testRetry}, nil, opts...)
	require.NoError(t, err)
	return service
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"defaults", Request{Prompt: "a lighthouse"}, nil},
		{"wide", Request{Prompt: "a lighthouse", Width: 1792, Height: 1024}, nil},
		{"empty prompt", Request{Prompt: "   "}, ErrEmptyPrompt},
		{"odd size", Request{Prompt: "a lighthouse", Width: 800, Height: 600}, ErrUnsupportedSize},
		{"negative", Request{Prompt: "a lighthouse", Width: -1}, ErrUnsupportedSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(nil, 0)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRequest_ValidateTokenBudget(t *testing.T) {
	counter := token_counter.NewMockTokenCounter()
	counter.On("CountPromptTokens", "a lighthouse", "oil painting").Return(12)

	req := Request{Prompt: "a lighthouse", Style: "oil painting"}
	assert.NoError(t, req.Validate(counter, 12))
	assert.ErrorIs(t, req.Validate(counter, 11), ErrPromptTooLong)
	counter.AssertExpectations(t)
}

func TestRequest_SizeAndPrompt(t *testing.T) {
	assert.Equal(t, "1024x1024", Request{}.Size())
	assert.Equal(t, "512x512", Request{Width: 512, Height: 512}.Size())
	assert.Equal(t, "a cat, in ukiyo-e style", Request{Prompt: " a cat ", Style: "ukiyo-e"}.FullPrompt())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.True(t, IsRetryable(&RequestError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(&RequestError{StatusCode: http.StatusRequestTimeout}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &RequestError{StatusCode: http.StatusBadGateway})))
	assert.False(t, IsRetryable(&RequestError{StatusCode: http.StatusBadRequest}))
	assert.False(t, IsRetryable(&RequestError{StatusCode: http.StatusUnauthorized}))
}

func TestService_GenerateRetriesTransientFailures(t *testing.T) {
	gen := NewMockGenerator()
	req := Request{Prompt: "a lighthouse"}
	image := &Image{URL: "https://images.example/1.png", Size: "1024x1024"}

	gen.On("Generate", mock.Anything, req).Return(nil, errors.New("upstream timeout")).Twice()
	gen.On("Generate", mock.Anything, req).Return(image, nil).Once()

	var retries []int
	service := newTestService(t, gen, retry.WithHooks(retry.Hooks{
		OnRetry: func(attempt int) { retries = append(retries, attempt) },
	}))

	got, err := service.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, image, got)
	assert.Equal(t, []int{1, 2}, retries)
	assert.Equal(t, retry.State{}, service.State())
	gen.AssertExpectations(t)
}

func TestService_GenerateDoesNotRetryRejectedRequests(t *testing.T) {
	gen := NewMockGenerator()
	req := Request{Prompt: "a lighthouse"}
	rejected := &RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("content policy")}
	gen.On("Generate", mock.Anything, req).Return(nil, rejected).Once()

	service := newTestService(t, gen)
	_, err := service.Generate(context.Background(), req)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	assert.NotErrorIs(t, err, retry.ErrRetryExhausted)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestService_GenerateExhausts(t *testing.T) {
	gen := NewMockGenerator()
	req := Request{Prompt: "a lighthouse"}
	gen.On("Generate", mock.Anything, req).Return(nil, errors.New("service unavailable"))

	var reported string
	service := newTestService(t, gen, retry.WithReporter(reporterFunc(func(ctx context.Context, err error, context string) {
		reported = context
	})))

	_, err := service.Generate(context.Background(), req)
	require.ErrorIs(t, err, retry.ErrRetryExhausted)
	assert.Equal(t, "Failed to execute image generation after 3 attempts", reported)
	gen.AssertNumberOfCalls(t, "Generate", 3)
}

// limiterFunc adapts a function to Limiter
type limiterFunc func(ctx context.Context, tokens int) error

func (f limiterFunc) Wait(ctx context.Context, tokens int) error { return f(ctx, tokens) }

func TestService_GenerateWaitsForLimiterEachAttempt(t *testing.T) {
	gen := NewMockGenerator()
	req := Request{Prompt: "a lighthouse", Style: "oil painting"}
	gen.On("Generate", mock.Anything, req).Return(nil, errors.New("upstream timeout")).Once()
	gen.On("Generate", mock.Anything, req).Return(&Image{URL: "https://images.example/1.png"}, nil).Once()

	counter := token_counter.NewMockTokenCounter()
	counter.On("CountPromptTokens", "a lighthouse", "oil painting").Return(12)

	var waits []int
	service, err := NewService(gen, counter, ServiceConfig{Retry: testRetry}, nil, retry.WithWaiter(noWait))
	require.NoError(t, err)
	service.SetLimiter(limiterFunc(func(ctx context.Context, tokens int) error {
		waits = append(waits, tokens)
		return nil
	}))

	_, err = service.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 12}, waits)
}

func TestService_LimiterRejectsOversizedRequest(t *testing.T) {
	gen := NewMockGenerator()
	service := newTestService(t, gen)
	service.SetLimiter(limiterFunc(func(ctx context.Context, tokens int) error {
		return fmt.Errorf("%w: too many tokens", rate_limit.ErrExceedsLimit)
	}))

	_, err := service.Generate(context.Background(), Request{Prompt: "a lighthouse"})
	assert.ErrorIs(t, err, rate_limit.ErrExceedsLimit)
	assert.NotErrorIs(t, err, retry.ErrRetryExhausted)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestService_GenerateValidatesFirst(t *testing.T) {
	gen := NewMockGenerator()
	service := newTestService(t, gen)

	_, err := service.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestService_NewRequestSupersedesPrevious(t *testing.T) {
	gen := NewMockGenerator()
	first := Request{Prompt: "first"}
	second := Request{Prompt: "second"}
	image := &Image{URL: "https://images.example/2.png"}

	started := make(chan struct{})
	gen.On("Generate", mock.Anything, first).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, errors.New("interrupted")).Once()
	gen.On("Generate", mock.Anything, second).Return(image, nil).Once()

	service := newTestService(t, gen)

	firstErr := make(chan error, 1)
	go func() {
		_, err := service.Generate(context.Background(), first)
		firstErr <- err
	}()
	<-started

	got, err := service.Generate(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, image, got)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, retry.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("superseded request did not settle")
	}
	gen.AssertExpectations(t)
}

func TestService_GenerateVariants(t *testing.T) {
	gen := NewMockGenerator()
	req := Request{Prompt: "a lighthouse"}

	var calls atomic.Int32
	gen.On("Generate", mock.Anything, req).Run(func(args mock.Arguments) {
		calls.Add(1)
	}).Return(&Image{URL: "https://images.example/v.png"}, nil)

	service := newTestService(t, gen)
	images, err := service.GenerateVariants(context.Background(), req, 3)
	require.NoError(t, err)
	assert.Len(t, images, 3)
	assert.Equal(t, int32(3), calls.Load())

	_, err = service.GenerateVariants(context.Background(), req, 0)
	assert.Error(t, err)
	_, err = service.GenerateVariants(context.Background(), req, MaxVariants+1)
	assert.Error(t, err)
}

func TestService_GenerateVariantsPartialFailure(t *testing.T) {
	gen := NewMockGenerator()
	req := Request{Prompt: "a lighthouse"}
	image := &Image{URL: "https://images.example/ok.png"}

	gen.On("Generate", mock.Anything, req).Return(image, nil).Once()
	gen.On("Generate", mock.Anything, req).Return(nil, &RequestError{StatusCode: http.StatusForbidden, Err: errors.New("quota")})

	service := newTestService(t, gen)
	service.config.VariantConcurrency = 1

	images, err := service.GenerateVariants(context.Background(), req, 2)
	require.Error(t, err)
	assert.Len(t, images, 1)
	assert.Equal(t, image, images[0])

	var reqErr *RequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestOpenAIGenerator(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1700000000,"data":[{"url":"https://images.example/a.png","revised_prompt":"a lighthouse at dusk"}]}`)
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	image, err := gen.Generate(context.Background(), Request{Prompt: "a lighthouse"})
	require.NoError(t, err)
	assert.Equal(t, "https://images.example/a.png", image.URL)
	assert.Equal(t, "a lighthouse at dusk", image.RevisedPrompt)
	assert.Equal(t, "1024x1024", image.Size)
	assert.Equal(t, int32(1), hits.Load())
}

func TestOpenAIGenerator_RejectedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad prompt","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), Request{Prompt: "a lighthouse"})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	assert.False(t, IsRetryable(err))
}

func TestNewOpenAIGenerator_RequiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{})
	assert.Error(t, err)
}

type reporterFunc func(ctx context.Context, err error, context string)

func (f reporterFunc) Report(ctx context.Context, err error, context string) {
	f(ctx, err, context)
}
