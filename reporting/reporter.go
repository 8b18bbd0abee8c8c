// Package reporting provides the error-reporting collaborators handed to retry
// executors: they receive the final error of every call that exhausted its retries.
package reporting

import (
	"context"
	"time"

	"github.com/FrenchMajesty/turbo-retry/utils/retry"
	"github.com/google/uuid"
)

// Reporter receives errors together with a human-readable context string
type Reporter = retry.Reporter

// Report is the JSON document describing one reported error. The HTTP reporter
// posts it and the server's ingest endpoint accepts it.
type Report struct {
	ID        string            `json:"id"`
	Message   string            `json:"message"`
	Context   string            `json:"context"`
	Source    string            `json:"source,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewReport builds a Report for err
func NewReport(err error, context, source string) Report {
	message := "<nil>"
	if err != nil {
		message = err.Error()
	}

	return Report{
		ID:        uuid.NewString(),
		Message:   message,
		Context:   context,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// ReporterFunc adapts a function to the Reporter interface
type ReporterFunc func(ctx context.Context, err error, context string)

func (f ReporterFunc) Report(ctx context.Context, err error, context string) {
	f(ctx, err, context)
}

// Nop discards every report
var Nop Reporter = ReporterFunc(func(context.Context, error, string) {})

// MultiReporter fans a report out to several reporters in order
type MultiReporter struct {
	reporters []Reporter
}

var _ Reporter = (*MultiReporter)(nil)

// NewMultiReporter creates a reporter that forwards to every non-nil reporter
func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	m := &MultiReporter{}
	for _, r := range reporters {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m
}

func (m *MultiReporter) Report(ctx context.Context, err error, context string) {
	for _, r := range m.reporters {
		r.Report(ctx, err, context)
	}
}

// Len returns the number of reporters
func (m *MultiReporter) Len() int {
	return len(m.reporters)
}
