package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/FrenchMajesty/turbo-retry/rate_limit"
	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/FrenchMajesty/turbo-retry/utils/parallel"
	"github.com/FrenchMajesty/turbo-retry/utils/retry"
	"github.com/FrenchMajesty/turbo-retry/utils/token_counter"
)

// MaxVariants bounds GenerateVariants
const MaxVariants = 8

const operationName = "image generation"

// ServiceConfig configures a Service
type ServiceConfig struct {
	Retry           retry.Config `yaml:"retry"`
	MaxPromptTokens int          `yaml:"max_prompt_tokens"`
	// VariantConcurrency caps parallel variant generations, zero means all at once
	VariantConcurrency int `yaml:"variant_concurrency"`
}

// Limiter admits one upstream request of the given prompt token size
type Limiter interface {
	Wait(ctx context.Context, tokens int) error
}

// Service runs image generations through retry executors
type Service struct {
	generator Generator
	counter   token_counter.Counter
	limiter   Limiter
	config    ServiceConfig
	logger    logger.Logger
	opts      []retry.Option

	// executor serves Generate; a new request supersedes the previous one
	executor *retry.Executor
}

// generation carries the result of one attempt, including failures that
// must not be retried
type generation struct {
	image *Image
	err   error
}

// NewService creates a service. counter may be nil to skip the token budget.
// opts apply to every executor the service creates.
func NewService(generator Generator, counter token_counter.Counter, config ServiceConfig, l logger.Logger, opts ...retry.Option) (*Service, error) {
	if generator == nil {
		return nil, fmt.Errorf("image service requires a generator")
	}
	if config.MaxPromptTokens <= 0 {
		config.MaxPromptTokens = DefaultMaxPromptTokens
	}
	if l == nil {
		l = logger.NewNoopLogger()
	}

	opts = append([]retry.Option{retry.WithLogger(l)}, opts...)
	executor, err := retry.NewExecutor(config.Retry, opts...)
	if err != nil {
		return nil, err
	}

	return &Service{
		generator: generator,
		counter:   counter,
		config:    config,
		logger:    l,
		opts:      opts,
		executor:  executor,
	}, nil
}

// Generate validates req and generates one image. A call still in flight on
// this service is superseded and returns an error matching retry.ErrCancelled.
// API rejections that cannot succeed on retry are returned after one attempt as
// a *RequestError.
func (s *Service) Generate(ctx context.Context, req Request) (*Image, error) {
	if err := req.Validate(s.counter, s.config.MaxPromptTokens); err != nil {
		return nil, err
	}
	return s.run(ctx, s.executor, operationName, req)
}

// GenerateVariants generates n images for the same request in parallel, each on
// its own executor. Images are returned in variant order for the variants that
// succeeded; the error joins every failure and is nil when all succeeded.
func (s *Service) GenerateVariants(ctx context.Context, req Request, n int) ([]*Image, error) {
	if n < 1 || n > MaxVariants {
		return nil, fmt.Errorf("variant count must be between 1 and %d, got %d", MaxVariants, n)
	}
	if err := req.Validate(s.counter, s.config.MaxPromptTokens); err != nil {
		return nil, err
	}

	builder := parallel.NewBuilder().Limit(s.config.VariantConcurrency)
	for i := 0; i < n; i++ {
		executor, err := retry.NewExecutor(s.config.Retry, s.opts...)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s variant %d", operationName, i+1)
		builder.Add(strconv.Itoa(i), func(ctx context.Context) (any, error) {
			return s.run(ctx, executor, name, req)
		})
	}
	results := builder.Run(ctx)

	images := make([]*Image, 0, n)
	var errs []error
	for i := 0; i < n; i++ {
		image, err := parallel.Get(results, strconv.Itoa(i), func(ctx context.Context) (*Image, error) { return nil, nil })
		if err != nil {
			errs = append(errs, fmt.Errorf("variant %d: %w", i+1, err))
			continue
		}
		images = append(images, image)
	}

	if len(errs) > 0 {
		s.logger.Printf("%d of %d image variants failed", len(errs), n)
	}
	return images, errors.Join(errs...)
}

// SetLimiter makes every attempt wait for l before calling the generator.
// Call it before serving requests.
func (s *Service) SetLimiter(l Limiter) {
	s.limiter = l
}

// State returns the retry state of the request served by Generate
func (s *Service) State() retry.State {
	return s.executor.State()
}

// Cancel stops the request served by Generate
func (s *Service) Cancel() {
	s.executor.Cancel()
}

func (s *Service) run(ctx context.Context, executor *retry.Executor, name string, req Request) (*Image, error) {
	tokens := s.promptTokens(req)
	result, err := retry.Execute(ctx, executor, name, func(ctx context.Context) (generation, error) {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx, tokens); err != nil {
				if errors.Is(err, rate_limit.ErrExceedsLimit) {
					return generation{err: err}, nil
				}
				return generation{}, err
			}
		}

		image, err := s.generator.Generate(ctx, req)
		if err != nil && !IsRetryable(err) {
			return generation{err: err}, nil
		}
		return generation{image: image}, err
	})
	if err != nil {
		return nil, err
	}
	if result.err != nil {
		s.logger.Printf("%s: not retrying: %v", name, result.err)
		return nil, result.err
	}
	if result.image == nil {
		return nil, fmt.Errorf("%s: generator returned no image", name)
	}
	return result.image, nil
}

func (s *Service) promptTokens(req Request) int {
	if s.counter == nil {
		return 0
	}
	return s.counter.CountPromptTokens(strings.TrimSpace(req.Prompt), strings.TrimSpace(req.Style))
}
