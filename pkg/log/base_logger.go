package log

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// BaseLogger implements the Logger interface.
type BaseLogger struct {
	mu        sync.RWMutex
	level     Level
	fields    Fields
	formatter Formatter
	outputs   []Output
	hooks     []Hook
}

var _ Logger = (*BaseLogger)(nil)

// Debug logs a message at the debug level.
func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields)
}

// Info logs a message at the info level.
func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields)
}

// Warn logs a message at the warn level.
func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields)
}

// Error logs a message at the error level.
func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields)
}

// With returns a child logger with the fields added.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	child := &BaseLogger{
		level:     l.GetLevel(),
		formatter: l.formatter,
		outputs:   l.outputs,
		hooks:     l.hooks,
		fields:    make(Fields, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

// WithContext returns a logger carrying the request fields stored in ctx.
func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	return l.With(contextFields(ctx)...)
}

// WithComponent returns a new logger with the component field added.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

// SetLevel sets the minimum log level.
func (l *BaseLogger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// GetLevel returns the current minimum log level.
func (l *BaseLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// Close closes every output.
func (l *BaseLogger) Close() error {
	var first error
	for _, o := range l.outputs {
		if err := o.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.GetLevel() {
		return
	}

	entryFields := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		entryFields[k] = v
	}
	for _, f := range fields {
		entryFields[f.Key] = f.Value
	}

	entry := &Entry{
		Level:     level,
		Message:   msg,
		Fields:    entryFields,
		Timestamp: time.Now(),
		Caller:    caller(3),
	}

	for _, hook := range l.hooks {
		if err := hook.Fire(entry); err != nil {
			fmt.Fprintf(os.Stderr, "log hook failed: %v\n", err)
		}
	}

	formatted, err := l.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log format failed: %v\n", err)
		return
	}
	for _, output := range l.outputs {
		if err := output.Write(entry, formatted); err != nil {
			fmt.Fprintf(os.Stderr, "log write failed: %v\n", err)
		}
	}
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	parts := strings.Split(file, "/")
	if len(parts) > 2 {
		file = strings.Join(parts[len(parts)-2:], "/")
	}
	return fmt.Sprintf("%s:%d", file, line)
}
