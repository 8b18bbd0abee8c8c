package reporting

import (
	"context"

	"github.com/FrenchMajesty/turbo-retry/utils/logger"
)

// LogReporter writes reports to a logger
type LogReporter struct {
	logger logger.Logger
}

var _ Reporter = (*LogReporter)(nil)

// NewLogReporter creates a reporter that logs through l
func NewLogReporter(l logger.Logger) *LogReporter {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &LogReporter{logger: l}
}

func (r *LogReporter) Report(ctx context.Context, err error, context string) {
	// Structured loggers keep the fields apart
	if slogger, ok := r.logger.(*logger.SlogLogger); ok {
		slogger.Error(ctx, "error reported", "context", context, "error", err)
		return
	}

	r.logger.Printf("Error reported [%s]: %v", context, err)
}
