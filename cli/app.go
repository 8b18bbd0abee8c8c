package cli

import (
	"context"
	"fmt"

	"github.com/FrenchMajesty/turbo-retry/config"
	"github.com/FrenchMajesty/turbo-retry/imagegen"
	"github.com/FrenchMajesty/turbo-retry/metrics"
	"github.com/FrenchMajesty/turbo-retry/rate_limit"
	"github.com/FrenchMajesty/turbo-retry/rate_limit/backends/memory"
	redisbackend "github.com/FrenchMajesty/turbo-retry/rate_limit/backends/redis"
	"github.com/FrenchMajesty/turbo-retry/reporting"
	"github.com/FrenchMajesty/turbo-retry/server"
	"github.com/FrenchMajesty/turbo-retry/upload"
	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/FrenchMajesty/turbo-retry/utils/retry"
	"github.com/FrenchMajesty/turbo-retry/utils/token_counter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the wired services of a running server
type app struct {
	server  *server.Server
	images  *imagegen.Service
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*app, error) {
	a := &app{}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	events := server.NewEventLog(cfg.Server.EventBuffer)
	go events.Run(ctx)

	reporter, ingest, store, err := a.newReporters(cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []retry.Option{
		retry.WithReporter(reporter),
		retry.WithObserver(collector),
		retry.WithEvents(events.Channel()),
	}

	generator, err := newGenerator(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	var counter token_counter.Counter
	if tc, err := token_counter.NewTokenCounter(); err != nil {
		log.Printf("Prompt token budget disabled: %v", err)
	} else {
		counter = tc
	}

	a.images, err = imagegen.NewService(generator, counter, cfg.ImageGenService(), log, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	if rl := cfg.ImageGen.RateLimit; rl != nil && rl.Enabled {
		backend, err := a.newRateLimitBackend(cfg.ImageGen.Provider, rl)
		if err != nil {
			a.close()
			return nil, err
		}
		a.images.SetLimiter(rate_limit.NewLimiter(backend, cfg.ImageGen.Provider, log))
	}

	var uploader *upload.Uploader
	if cfg.Upload.Enabled {
		uploader, err = newUploader(ctx, cfg, log, opts)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	deps := server.Deps{
		Images:   a.images,
		Uploader: uploader,
		Ingest:   ingest,
		Events:   events,
		Metrics:  collector,
		Logger:   log,
	}
	if store != nil {
		deps.Reports = store
	}

	a.server, err = server.New(server.Config{
		Port:      cfg.Server.Port,
		BodyLimit: cfg.Server.BodyLimit,
	}, deps)
	if err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

// newReporters builds the executor reporter and the ingest reporter used by
// /api/errors. The ingest side never posts over HTTP, so a reporter pointed at
// this server cannot loop.
func (a *app) newReporters(cfg *config.AppConfig, log logger.Logger) (reporting.Reporter, reporting.Reporter, *reporting.RedisReporter, error) {
	var executorSide, ingestSide []reporting.Reporter

	if cfg.Reporting.Log {
		logReporter := reporting.NewLogReporter(log)
		executorSide = append(executorSide, logReporter)
		ingestSide = append(ingestSide, logReporter)
	}

	if h := cfg.Reporting.HTTP; h != nil && h.Enabled {
		httpReporter, err := reporting.NewHTTPReporter(h.HTTPConfig, log)
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, httpReporter.Close)
		executorSide = append(executorSide, httpReporter)
	}

	var store *reporting.RedisReporter
	if r := cfg.Reporting.Redis; r != nil && r.Enabled {
		client, err := reporting.NewRedisClient(r.RedisConfig)
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, client.Close)

		store = reporting.NewRedisReporter(client, r.RedisConfig, log)
		executorSide = append(executorSide, store)
		ingestSide = append(ingestSide, store)
	}

	if len(ingestSide) == 0 {
		ingestSide = append(ingestSide, reporting.NewLogReporter(log))
	}
	return reporting.NewMultiReporter(executorSide...), reporting.NewMultiReporter(ingestSide...), store, nil
}

func (a *app) newRateLimitBackend(key string, rl *config.RateLimitConfig) (rate_limit.Backend, error) {
	limits := map[string]rate_limit.Limit{key: rl.Limit}

	if rl.Backend == config.RateLimitRedis {
		client, err := reporting.NewRedisClient(reporting.RedisConfig{URL: rl.RedisURL})
		if err != nil {
			return nil, fmt.Errorf("rate limit backend: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return redisbackend.NewBackend(client, rl.Prefix, limits), nil
	}

	backend := memory.NewBackend(limits)
	a.closers = append(a.closers, backend.Close)
	return backend, nil
}

func newGenerator(cfg *config.AppConfig) (imagegen.Generator, error) {
	switch cfg.ImageGen.Provider {
	case config.ProviderOpenAI:
		return imagegen.NewOpenAIGenerator(cfg.ImageGen.OpenAI)
	case config.ProviderMock:
		return &demoGenerator{failureRate: 0.3}, nil
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.ImageGen.Provider)
	}
}

func newUploader(ctx context.Context, cfg *config.AppConfig, log logger.Logger, opts []retry.Option) (*upload.Uploader, error) {
	store, err := upload.NewMinioStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
		return nil, fmt.Errorf("prepare upload bucket: %w", err)
	}
	return upload.NewUploader(store, cfg.Uploader(), log, opts...)
}
