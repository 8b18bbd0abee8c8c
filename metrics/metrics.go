package metrics

import (
	"net/http"
	"time"

	"github.com/FrenchMajesty/turbo-retry/utils/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records executor activity as prometheus metrics
type Collector struct {
	registry *prometheus.Registry

	// Attempts counts every attempt started, retries included
	Attempts *prometheus.CounterVec
	// Backoff observes the delay waited before each retry
	Backoff *prometheus.HistogramVec
	// Outcomes counts terminal results per operation
	Outcomes *prometheus.CounterVec
}

var _ retry.Observer = (*Collector)(nil)

// NewCollector registers the retry metrics on reg, or on a fresh registry when reg is nil
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbo_retry_attempts_total",
				Help: "Total number of operation attempts",
			},
			[]string{"operation"},
		),
		Backoff: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turbo_retry_backoff_seconds",
				Help:    "Backoff delay before a retry in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"operation"},
		),
		Outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbo_retry_outcomes_total",
				Help: "Total number of finished calls by outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
}

func (c *Collector) ObserveAttempt(name string, attempt int) {
	c.Attempts.WithLabelValues(name).Inc()
}

func (c *Collector) ObserveBackoff(name string, delay time.Duration) {
	c.Backoff.WithLabelValues(name).Observe(delay.Seconds())
}

func (c *Collector) ObserveOutcome(name string, outcome retry.Outcome) {
	c.Outcomes.WithLabelValues(name, string(outcome)).Inc()
}

// Registry returns the registry holding the metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
