package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Logger provides a simple logging interface for executors, reporters and services.
// All implementations must be safe for concurrent use across multiple goroutines.
type Logger interface {
	// Type returns the type of the logger
	Type() LoggerType
	// Printf logs a formatted message
	Printf(format string, args ...any)
	// Println logs a message with a newline
	Println(message string)
	// Close closes the logger
	Close() error
}

type LoggerType string

const (
	LoggerTypeStdout LoggerType = "stdout"
	LoggerTypeFile   LoggerType = "file"
	LoggerTypeNoop   LoggerType = "noop"
	LoggerTypeWriter LoggerType = "writer"
	LoggerTypeSlog   LoggerType = "slog"
	LoggerTypeMulti  LoggerType = "multi"
)

// Options selects and configures a Logger built by New
type Options struct {
	Type    LoggerType `yaml:"type"`
	Level   string     `yaml:"level"`  // debug, info, warn, error (slog only)
	Format  string     `yaml:"format"` // text, json (slog only)
	File    string     `yaml:"file"`   // also written to when set
	NoColor bool       `yaml:"no_color"`
}

// New builds the logger described by opts. When opts.File is set and the main
// logger does not already write there, a FileLogger is added through a MultiLogger.
func New(opts Options) (Logger, error) {
	var base Logger

	switch opts.Type {
	case "", LoggerTypeStdout:
		base = NewStdoutLogger()
	case LoggerTypeSlog:
		base = NewSlogLogger(os.Stdout, SlogOptions{
			Level:   ParseLevel(opts.Level),
			JSON:    strings.EqualFold(opts.Format, "json"),
			NoColor: opts.NoColor,
		})
	case LoggerTypeNoop:
		base = NewNoopLogger()
	case LoggerTypeFile:
		if opts.File == "" {
			return nil, fmt.Errorf("file logger requires a file path")
		}
		fileLogger, err := NewFileLogger(opts.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return fileLogger, nil
	default:
		return nil, fmt.Errorf("unknown logger type %q", opts.Type)
	}

	if opts.File == "" || base.Type() == LoggerTypeNoop {
		return base, nil
	}

	fileLogger, err := NewFileLogger(opts.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return NewMultiLogger(base, fileLogger), nil
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MultiLogger writes to multiple loggers simultaneously.
// Safe for concurrent use if all underlying loggers are safe.
type MultiLogger struct {
	loggers []Logger
}

var _ Logger = (*MultiLogger)(nil)

// NewMultiLogger creates a logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
	}
}

func (m *MultiLogger) Type() LoggerType {
	return LoggerTypeMulti
}

func (m *MultiLogger) Printf(format string, args ...any) {
	for _, logger := range m.loggers {
		logger.Printf(format, args...)
	}
}

func (m *MultiLogger) Println(message string) {
	for _, logger := range m.loggers {
		logger.Println(message)
	}
}

// Close closes every underlying logger and returns the first error
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NoopLogger discards all log messages. Components default to it.
type NoopLogger struct{}

var _ Logger = (*NoopLogger)(nil)

// NewNoopLogger creates a new logger that discards all output
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (n *NoopLogger) Type() LoggerType {
	return LoggerTypeNoop
}

func (n *NoopLogger) Printf(format string, args ...any) {
	// Discard
}

func (n *NoopLogger) Println(message string) {
	// Discard
}

func (n *NoopLogger) Close() error {
	return nil
}
