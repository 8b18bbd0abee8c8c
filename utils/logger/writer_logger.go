package logger

import (
	"io"
	"log"
	"os"
)

// WriterLogger writes lines through the standard log package to any io.Writer.
// log.Logger serializes writes, so it is safe across goroutines; when backed by
// a file opened with O_APPEND, each line is also appended atomically across processes.
type WriterLogger struct {
	kind   LoggerType
	logger *log.Logger
	closer io.Closer
}

var _ Logger = (*WriterLogger)(nil)

// NewStdoutLogger creates a new logger that writes to stdout
func NewStdoutLogger() *WriterLogger {
	return &WriterLogger{
		kind:   LoggerTypeStdout,
		logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

// NewFileLogger creates a new logger that appends to the file at path, creating it if needed
func NewFileLogger(path string) (*WriterLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, err
	}

	return &WriterLogger{
		kind:   LoggerTypeFile,
		logger: log.New(file, "", log.LstdFlags),
		closer: file,
	}, nil
}

// NewWriterLogger creates a logger from any io.Writer.
// Thread safety across processes depends on the underlying writer.
func NewWriterLogger(w io.Writer) *WriterLogger {
	return &WriterLogger{
		kind:   LoggerTypeWriter,
		logger: log.New(w, "", log.LstdFlags),
	}
}

func (w *WriterLogger) Type() LoggerType {
	return w.kind
}

func (w *WriterLogger) Printf(format string, args ...any) {
	w.logger.Printf(format, args...)
}

func (w *WriterLogger) Println(message string) {
	w.logger.Println(message)
}

// Close closes the underlying file for file loggers; other kinds own nothing
func (w *WriterLogger) Close() error {
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}
