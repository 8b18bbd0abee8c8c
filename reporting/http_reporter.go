package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/FrenchMajesty/turbo-retry/utils/retry"
)

// HTTPConfig configures an HTTPReporter
type HTTPConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Source   string            `yaml:"source"`
	Tags     map[string]string `yaml:"tags"`
	Timeout  time.Duration     `yaml:"timeout"`
	Retry    retry.Config      `yaml:"retry"`
	// QueueSize bounds reports waiting for delivery; extra reports are dropped
	QueueSize int `yaml:"queue_size"`
}

// DefaultQueueSize is the delivery queue length used when none is configured
const DefaultQueueSize = 100

// DefaultHTTPConfig returns a config with a short timeout and two retries
func DefaultHTTPConfig(endpoint string) HTTPConfig {
	return HTTPConfig{
		Endpoint: endpoint,
		Source:    "turbo-retry",
		Timeout:   5 * time.Second,
		QueueSize: DefaultQueueSize,
		Retry: retry.Config{
			MaxRetries:        2,
			Delay:             500 * time.Millisecond,
			BackoffMultiplier: 2,
		},
	}
}

// HTTPReporter posts reports as JSON to an error-collection endpoint. Reports
// are queued and delivered by a background worker until Close.
type HTTPReporter struct {
	config     HTTPConfig
	httpClient *http.Client
	logger     logger.Logger
	opts       []retry.Option

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	queue  chan Report
	done   chan struct{}
}

var _ Reporter = (*HTTPReporter)(nil)

// NewHTTPReporter creates a reporter posting to config.Endpoint. Extra retry
// options apply to the executor used for each delivery.
func NewHTTPReporter(config HTTPConfig, l logger.Logger, opts ...retry.Option) (*HTTPReporter, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("http reporter requires an endpoint")
	}
	if err := config.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid delivery retry config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if l == nil {
		l = logger.NewNoopLogger()
	}

	r := &HTTPReporter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: l,
		opts:   opts,
		queue:  make(chan Report, config.QueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Report queues the error for delivery and returns without waiting for it.
// Reports are dropped, with a log line, when the queue is full or the
// reporter is closed. Delivery failures are logged and never reported again.
func (r *HTTPReporter) Report(ctx context.Context, err error, context string) {
	report := NewReport(err, context, r.config.Source)
	report.Tags = r.config.Tags

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Printf("Dropped error report %s: reporter closed", report.ID)
		return
	}
	select {
	case r.queue <- report:
	default:
		r.logger.Printf("Dropped error report %s: delivery queue full", report.ID)
	}
}

// Close stops accepting reports and waits for the queued ones to be delivered
func (r *HTTPReporter) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	<-r.done
	return nil
}

// run delivers queued reports, each bounded by the time every attempt and
// backoff could take, detached from the context of the failed call
func (r *HTTPReporter) run() {
	defer close(r.done)

	budget := r.deliveryBudget()
	for report := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		if err := r.Send(ctx, report); err != nil {
			r.logger.Printf("Failed to deliver error report %s: %v", report.ID, err)
		}
		cancel()
	}
}

func (r *HTTPReporter) deliveryBudget() time.Duration {
	budget := r.config.Timeout * time.Duration(r.config.Retry.Attempts())
	for attempt := 1; attempt <= r.config.Retry.MaxRetries; attempt++ {
		delay := retry.Backoff(r.config.Retry, attempt)
		if delay > math.MaxInt64-budget {
			return math.MaxInt64
		}
		budget += delay
	}
	return budget
}

// Send posts one report. Every call gets its own executor so concurrent reports
// do not supersede each other.
func (r *HTTPReporter) Send(ctx context.Context, report Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	executor, err := retry.NewExecutor(r.config.Retry, append([]retry.Option{retry.WithLogger(r.logger)}, r.opts...)...)
	if err != nil {
		return err
	}

	return executor.Do(ctx, "report delivery", func(ctx context.Context) error {
		return r.post(ctx, body)
	})
}

func (r *HTTPReporter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return nil
}
