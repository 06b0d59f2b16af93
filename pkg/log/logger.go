// Package log provides the structured logger used by every ARMIS component.
package log

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %q", s)
	}
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Well-known field keys.
const (
	RequestIDKey = "request_id"
	ComponentKey = "component"
	UserIDKey    = "user_id"
)

// Entry represents a single log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
}

// Logger defines the core logging interface for ARMIS components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger carrying the given fields.
	With(fields ...Field) Logger

	// WithContext adds request-scoped fields stored in ctx.
	WithContext(ctx context.Context) Logger

	// WithComponent tags logs with a component name.
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Formatter turns an entry into bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives formatted entries.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// Hook is invoked for every entry before it is formatted.
type Hook interface {
	Fire(entry *Entry) error
}

type ctxKey struct{ name string }

var (
	loggerCtxKey    = ctxKey{"logger"}
	requestIDCtxKey = ctxKey{RequestIDKey}
	userIDCtxKey    = ctxKey{UserIDKey}
)

// ContextWithRequestID stores a request id for later extraction by WithContext.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, id)
}

// ContextWithUserID stores the acting user id for later extraction by WithContext.
func ContextWithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDCtxKey, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

func contextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	var fields []Field
	if v, ok := ctx.Value(requestIDCtxKey).(string); ok && v != "" {
		fields = append(fields, Str(RequestIDKey, v))
	}
	if v, ok := ctx.Value(userIDCtxKey).(string); ok && v != "" {
		fields = append(fields, Str(UserIDKey, v))
	}
	return fields
}

// WithLogger attaches a logger to ctx.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// FromContext returns the logger stored in ctx or the default logger.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerCtxKey).(Logger); ok {
			return logger
		}
	}
	return defaultLogger.WithContext(ctx)
}

var defaultLogger Logger = NewLogger(WithLevel(InfoLevel))

// SetDefaultLogger sets the global default logger.
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the global default logger.
func GetDefaultLogger() Logger {
	return defaultLogger
}

// LoggerOption configures a BaseLogger.
type LoggerOption func(*BaseLogger)

// NewLogger creates a new logger with the given options. Without an
// explicit output, entries go to stdout with errors on stderr.
func NewLogger(options ...LoggerOption) Logger {
	logger := &BaseLogger{
		level:     InfoLevel,
		fields:    Fields{},
		formatter: &JSONFormatter{},
	}
	for _, option := range options {
		option(logger)
	}
	if len(logger.outputs) == 0 {
		logger.outputs = append(logger.outputs, NewConsoleOutput(WithErrorToStderr()))
	}
	return logger
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) {
		l.level = level
	}
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) {
		l.formatter = formatter
	}
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) {
		l.outputs = append(l.outputs, output)
	}
}

// WithHook adds a hook to the logger.
func WithHook(hook Hook) LoggerOption {
	return func(l *BaseLogger) {
		l.hooks = append(l.hooks, hook)
	}
}

// New builds a logger from a level name and a format name (text or json).
func New(level, format string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch strings.ToLower(format) {
	case "json":
		formatter = &JSONFormatter{}
	case "text", "pretty", "":
		formatter = NewTextFormatter()
	default:
		return nil, fmt.Errorf("invalid log format: %q", format)
	}
	return NewLogger(
		WithLevel(lvl),
		WithFormatter(formatter),
		WithHook(NewRedactionHook(DefaultRedactedFields...)),
	), nil
}
