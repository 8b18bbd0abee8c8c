package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// SlogOptions configures a SlogLogger
type SlogOptions struct {
	Level   slog.Level
	JSON    bool // JSON lines instead of tinted text
	NoColor bool
}

// SlogLogger adapts a structured slog.Logger to the Logger interface.
// Printf and Println log at info level; the structured methods keep attributes.
type SlogLogger struct {
	logger *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger creates a structured logger writing to w, tinted for terminals
// unless JSON is requested
func NewSlogLogger(w io.Writer, opts SlogOptions) *SlogLogger {
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.DateTime,
			NoColor:    opts.NoColor,
		})
	}

	return &SlogLogger{logger: slog.New(handler)}
}

// NewSlogLoggerFrom wraps an existing slog.Logger
func NewSlogLoggerFrom(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l}
}

func (s *SlogLogger) Type() LoggerType {
	return LoggerTypeSlog
}

func (s *SlogLogger) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

func (s *SlogLogger) Println(message string) {
	s.logger.Info(message)
}

// Error logs msg at error level with key/value attributes
func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.logger.ErrorContext(ctx, msg, args...)
}

// Warn logs msg at warn level with key/value attributes
func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.logger.WarnContext(ctx, msg, args...)
}

// Debug logs msg at debug level with key/value attributes
func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.logger.DebugContext(ctx, msg, args...)
}

// With returns a logger that adds args to every record
func (s *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{logger: s.logger.With(args...)}
}

// Slog returns the underlying slog.Logger
func (s *SlogLogger) Slog() *slog.Logger {
	return s.logger
}

func (s *SlogLogger) Close() error {
	return nil
}
