package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/FrenchMajesty/turbo-retry/imagegen"
	"github.com/FrenchMajesty/turbo-retry/rate_limit"
	"github.com/FrenchMajesty/turbo-retry/reporting"
	"github.com/FrenchMajesty/turbo-retry/upload"
	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/FrenchMajesty/turbo-retry/utils/retry"
)

// AppConfig is the whole service configuration
type AppConfig struct {
	Server    ServerConfig         `yaml:"server"`
	Logging   logger.Options       `yaml:"logging"`
	Retry     retry.Config         `yaml:"retry"`
	Reporting ReportingConfig      `yaml:"reporting"`
	ImageGen  ImageGenConfig       `yaml:"imagegen"`
	Storage   upload.StorageConfig `yaml:"storage"`
	Upload    UploadConfig         `yaml:"upload"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	BodyLimit       int           `yaml:"body_limit"`
	EventBuffer     int           `yaml:"event_buffer"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ReportingConfig struct {
	Log   bool            `yaml:"log"`
	HTTP  *HTTPReporting  `yaml:"http"`
	Redis *RedisReporting `yaml:"redis"`
}

type HTTPReporting struct {
	Enabled bool `yaml:"enabled"`

	reporting.HTTPConfig `yaml:",inline"`
}

type RedisReporting struct {
	Enabled bool `yaml:"enabled"`

	reporting.RedisConfig `yaml:",inline"`
}

// ImageGenConfig selects and configures the image generator
type ImageGenConfig struct {
	Provider           string                `yaml:"provider"` // openai or mock
	OpenAI             imagegen.OpenAIConfig `yaml:"openai"`
	MaxPromptTokens    int                   `yaml:"max_prompt_tokens"`
	VariantConcurrency int                   `yaml:"variant_concurrency"`
	RateLimit          *RateLimitConfig      `yaml:"rate_limit"`
	// Retry overrides the top-level retry section
	Retry *retry.Config `yaml:"retry"`
}

// RateLimitConfig bounds generator calls per minute. Without rpm and tpm the
// provider's default limit applies.
type RateLimitConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Backend  string `yaml:"backend"` // memory or redis
	RedisURL string `yaml:"redis_url"`
	Prefix   string `yaml:"prefix"`

	rate_limit.Limit `yaml:",inline"`
}

// UploadConfig configures uploads; the bucket comes from the storage section
type UploadConfig struct {
	Enabled bool          `yaml:"enabled"`
	Prefix  string        `yaml:"prefix"`
	Policy  upload.Policy `yaml:"policy"`
	// Retry overrides the top-level retry section
	Retry *retry.Config `yaml:"retry"`
}

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// Default returns the configuration used for every key the file leaves out
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:            8080,
			BodyLimit:       int(upload.DefaultMaxFileSize) + 1<<20,
			EventBuffer:     256,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: logger.Options{
			Type:  logger.LoggerTypeSlog,
			Level: "info",
		},
		Retry: retry.DefaultConfig(),
		Reporting: ReportingConfig{
			Log: true,
		},
		ImageGen: ImageGenConfig{
			Provider:        ProviderMock,
			MaxPromptTokens: imagegen.DefaultMaxPromptTokens,
		},
		Storage: upload.StorageConfig{
			Region: "us-east-1",
			Bucket: "uploads",
		},
		Upload: UploadConfig{
			Policy: upload.DefaultPolicy(),
		},
	}
}

// applyDefaults fills the optional sections a file enabled without all their keys
func (c *AppConfig) applyDefaults() {
	if h := c.Reporting.HTTP; h != nil {
		defaults := reporting.DefaultHTTPConfig(h.Endpoint)
		if h.Source == "" {
			h.Source = defaults.Source
		}
		if h.Timeout <= 0 {
			h.Timeout = defaults.Timeout
		}
		if h.Retry == (retry.Config{}) {
			h.Retry = defaults.Retry
		}
	}
	if r := c.Reporting.Redis; r != nil && r.MaxEntries <= 0 {
		r.MaxEntries = reporting.DefaultMaxEntries
	}
	if c.ImageGen.MaxPromptTokens <= 0 {
		c.ImageGen.MaxPromptTokens = imagegen.DefaultMaxPromptTokens
	}
	if rl := c.ImageGen.RateLimit; rl != nil {
		if rl.Backend == "" {
			rl.Backend = RateLimitMemory
		}
		if rl.RPM == 0 && rl.TPM == 0 {
			rl.Limit = c.ImageGen.DefaultLimit()
		}
	}
}

// DefaultLimit returns the per-minute budget of the configured provider
func (c ImageGenConfig) DefaultLimit() rate_limit.Limit {
	if c.Provider == ProviderOpenAI {
		return rate_limit.OpenAIImageLimit
	}
	return rate_limit.DemoLimit
}

// Validate checks the sections that would otherwise fail at startup
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	if c.ImageGen.Retry != nil {
		if err := c.ImageGen.Retry.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("imagegen.retry: %w", err))
		}
	}
	if c.Upload.Retry != nil {
		if err := c.Upload.Retry.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("upload.retry: %w", err))
		}
	}

	switch c.ImageGen.Provider {
	case ProviderMock:
	case ProviderOpenAI:
		if c.ImageGen.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("imagegen.openai.api_key is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("imagegen.provider must be %q or %q, got %q", ProviderOpenAI, ProviderMock, c.ImageGen.Provider))
	}

	if c.Upload.Enabled {
		if err := c.Storage.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if h := c.Reporting.HTTP; h != nil && h.Enabled && h.Endpoint == "" {
		errs = append(errs, errors.New("reporting.http.endpoint is required when enabled"))
	}
	if rl := c.ImageGen.RateLimit; rl != nil && rl.Enabled {
		switch rl.Backend {
		case RateLimitMemory:
		case RateLimitRedis:
			if rl.RedisURL == "" {
				errs = append(errs, errors.New("imagegen.rate_limit.redis_url is required for the redis backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("imagegen.rate_limit.backend must be %q or %q, got %q", RateLimitMemory, RateLimitRedis, rl.Backend))
		}
		if rl.RPM < 0 || rl.TPM < 0 {
			errs = append(errs, errors.New("imagegen.rate_limit rpm and tpm must not be negative"))
		}
	}
	if r := c.Reporting.Redis; r != nil && r.Enabled && r.URL == "" {
		errs = append(errs, errors.New("reporting.redis.url is required when enabled"))
	}

	return errors.Join(errs...)
}

// ImageGenService returns the image service settings
func (c *AppConfig) ImageGenService() imagegen.ServiceConfig {
	retryConfig := c.Retry
	if c.ImageGen.Retry != nil {
		retryConfig = *c.ImageGen.Retry
	}
	return imagegen.ServiceConfig{
		Retry:              retryConfig,
		MaxPromptTokens:    c.ImageGen.MaxPromptTokens,
		VariantConcurrency: c.ImageGen.VariantConcurrency,
	}
}

// Uploader returns the uploader settings
func (c *AppConfig) Uploader() upload.Config {
	retryConfig := c.Retry
	if c.Upload.Retry != nil {
		retryConfig = *c.Upload.Retry
	}
	return upload.Config{
		Bucket: c.Storage.Bucket,
		Prefix: c.Upload.Prefix,
		Policy: c.Upload.Policy,
		Retry:  retryConfig,
	}
}
