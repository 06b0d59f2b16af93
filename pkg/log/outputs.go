package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes log entries to stdout, or to stderr for errors when
// configured to do so.
type ConsoleOutput struct {
	mu            sync.Mutex
	useStderr     bool
	errorToStderr bool
	writer        io.Writer
	errorWriter   io.Writer
}

// ConsoleOutputOption configures a ConsoleOutput.
type ConsoleOutputOption func(*ConsoleOutput)

// WithStderr sends every entry to stderr.
func WithStderr() ConsoleOutputOption {
	return func(o *ConsoleOutput) { o.useStderr = true }
}

// WithErrorToStderr sends error entries to stderr.
func WithErrorToStderr() ConsoleOutputOption {
	return func(o *ConsoleOutput) { o.errorToStderr = true }
}

// WithWriter replaces stdout with w.
func WithWriter(w io.Writer) ConsoleOutputOption {
	return func(o *ConsoleOutput) { o.writer = w }
}

// WithErrorWriter replaces stderr with w for error entries.
func WithErrorWriter(w io.Writer) ConsoleOutputOption {
	return func(o *ConsoleOutput) { o.errorWriter = w }
}

// NewConsoleOutput creates a ConsoleOutput.
func NewConsoleOutput(options ...ConsoleOutputOption) *ConsoleOutput {
	o := &ConsoleOutput{}
	for _, option := range options {
		option(o)
	}
	return o
}

// Write writes the formatted entry.
func (o *ConsoleOutput) Write(entry *Entry, formattedEntry []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var w io.Writer = os.Stdout
	switch {
	case o.writer != nil:
		w = o.writer
	case o.useStderr:
		w = os.Stderr
	}
	if entry.Level == ErrorLevel && o.errorToStderr {
		w = os.Stderr
		if o.errorWriter != nil {
			w = o.errorWriter
		}
	}
	_, err := w.Write(formattedEntry)
	return err
}

// Close is a no-op.
func (o *ConsoleOutput) Close() error { return nil }

// NullOutput discards everything.
type NullOutput struct{}

// NewNullOutput creates a NullOutput.
func NewNullOutput() *NullOutput { return &NullOutput{} }

func (o *NullOutput) Write(*Entry, []byte) error { return nil }
func (o *NullOutput) Close() error               { return nil }

// NewNopLogger returns a logger that drops every entry.
func NewNopLogger() Logger {
	return NewLogger(WithLevel(ErrorLevel+1), WithOutput(NewNullOutput()))
}
