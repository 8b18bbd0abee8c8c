package server

import (
	"context"
	"fmt"
	"time"

	"github.com/FrenchMajesty/turbo-retry/imagegen"
	"github.com/FrenchMajesty/turbo-retry/metrics"
	"github.com/FrenchMajesty/turbo-retry/reporting"
	"github.com/FrenchMajesty/turbo-retry/upload"
	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// ReportStore lists stored error reports, newest first
type ReportStore interface {
	Recent(ctx context.Context, n int64) ([]reporting.Report, error)
}

// Deps are the services behind the API. Uploader and Reports may be nil; their
// endpoints then answer 503.
type Deps struct {
	Images   *imagegen.Service
	Uploader *upload.Uploader
	// Ingest receives reports posted to /api/errors
	Ingest  reporting.Reporter
	Reports ReportStore
	Events  *EventLog
	Metrics *metrics.Collector
	Logger  logger.Logger
}

// Config holds the HTTP settings
type Config struct {
	Port      int
	BodyLimit int
}

// Server is the fiber application exposing generation, upload and retry state
type Server struct {
	app    *fiber.App
	config Config
	deps   Deps
	logger logger.Logger
}

// New builds the fiber app and registers every route
func New(config Config, deps Deps) (*Server, error) {
	if deps.Images == nil {
		return nil, fmt.Errorf("server requires an image service")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoopLogger()
	}
	if deps.Ingest == nil {
		deps.Ingest = reporting.NewLogReporter(deps.Logger)
	}
	if deps.Events == nil {
		deps.Events = NewEventLog(0)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector(nil)
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
	}

	fiberConfig := fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	}
	if config.BodyLimit > 0 {
		fiberConfig.BodyLimit = config.BodyLimit
	}
	s.app = fiber.New(fiberConfig)
	s.app.Use(recover.New())
	s.routes()

	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.deps.Metrics.Handler()))

	api := s.app.Group("/api")
	api.Post("/generate", s.handleGenerate)
	api.Post("/generate/cancel", s.handleCancel)
	api.Post("/upload", s.handleUpload)
	api.Get("/retry/state", s.handleRetryState)
	api.Get("/retry/events", s.handleRetryEvents)
	api.Post("/errors", s.handleIngestError)
	api.Get("/errors", s.handleListErrors)
}

// App exposes the fiber app, mostly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Printf("HTTP server listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for open ones until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	start := time.Now()
	err := s.app.ShutdownWithContext(ctx)
	s.logger.Printf("HTTP server stopped in %s", time.Since(start))
	return err
}
