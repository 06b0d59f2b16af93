package log

import (
	"context"
	"strings"
	"sync"
)

// TestEntry represents a captured log entry for testing
type TestEntry struct {
	Level   Level
	Message string
	Fields  []Field
}

// Field returns the value of the named field and whether it was present.
func (e TestEntry) Field(key string) (interface{}, bool) {
	for i := len(e.Fields) - 1; i >= 0; i-- {
		if e.Fields[i].Key == key {
			return e.Fields[i].Value, true
		}
	}
	return nil, false
}

// TestLogger captures entries in memory so tests can assert on them.
// Child loggers share the parent's entry buffer.
type TestLogger struct {
	sink   *testSink
	fields []Field
	level  Level
}

type testSink struct {
	mu      sync.Mutex
	entries []TestEntry
}

var _ Logger = (*TestLogger)(nil)

// NewTestLogger creates a TestLogger that records every level.
func NewTestLogger() *TestLogger {
	return &TestLogger{sink: &testSink{}, level: DebugLevel}
}

// GetEntries returns a copy of all captured entries.
func (l *TestLogger) GetEntries() []TestEntry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	out := make([]TestEntry, len(l.sink.entries))
	copy(out, l.sink.entries)
	return out
}

// ClearEntries drops all captured entries.
func (l *TestLogger) ClearEntries() {
	l.sink.mu.Lock()
	l.sink.entries = nil
	l.sink.mu.Unlock()
}

// HasMessage reports whether an entry at level contains substr.
func (l *TestLogger) HasMessage(level Level, substr string) bool {
	for _, e := range l.GetEntries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// EntriesAt returns the captured entries at level.
func (l *TestLogger) EntriesAt(level Level) []TestEntry {
	var out []TestEntry
	for _, e := range l.GetEntries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func (l *TestLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *TestLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *TestLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *TestLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *TestLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	l.sink.mu.Lock()
	l.sink.entries = append(l.sink.entries, TestEntry{Level: level, Message: msg, Fields: all})
	l.sink.mu.Unlock()
}

// With returns a child logger that shares the entry buffer.
func (l *TestLogger) With(fields ...Field) Logger {
	child := &TestLogger{sink: l.sink, level: l.level}
	child.fields = append(append(child.fields, l.fields...), fields...)
	return child
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l.With(contextFields(ctx)...)
}

func (l *TestLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

func (l *TestLogger) SetLevel(level Level) { l.level = level }
func (l *TestLogger) GetLevel() Level      { return l.level }
