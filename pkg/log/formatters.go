package log

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// JSONFormatter formats log entries as one JSON object per line.
type JSONFormatter struct {
	TimestampFormat string
	EnableCaller    bool
}

// Format formats the entry as JSON.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		data[k] = v
	}

	layout := time.RFC3339
	if f.TimestampFormat != "" {
		layout = f.TimestampFormat
	}
	data["timestamp"] = entry.Timestamp.Format(layout)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if f.EnableCaller && entry.Caller != "" {
		data["caller"] = entry.Caller
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter formats log entries as human-readable text.
type TextFormatter struct {
	TimestampFormat string
	EnableCaller    bool
	DisableColors   bool
}

// NewTextFormatter creates a TextFormatter with millisecond timestamps.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimestampFormat: "2006-01-02T15:04:05.000"}
}

// Format formats the entry as a single text line with sorted fields.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = "2006-01-02T15:04:05.000"
	}
	ts := entry.Timestamp.Format(layout)
	level := entry.Level.String()
	if !f.DisableColors {
		ts = colorDim + ts + colorReset
		level = colorizeLevel(entry.Level)
	}

	var b strings.Builder
	b.WriteString(ts)
	b.WriteByte(' ')
	b.WriteString(level)
	if f.EnableCaller && entry.Caller != "" {
		fmt.Fprintf(&b, " (%s)", entry.Caller)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if f.DisableColors {
			fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
		} else {
			fmt.Fprintf(&b, " %s%s%s=%v", colorCyan, k, colorReset, entry.Fields[k])
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[90m"
)

func colorizeLevel(level Level) string {
	switch level {
	case DebugLevel:
		return colorBlue + "DBG" + colorReset
	case InfoLevel:
		return colorGreen + "INF" + colorReset
	case WarnLevel:
		return colorYellow + "WRN" + colorReset
	case ErrorLevel:
		return colorRed + "ERR" + colorReset
	default:
		return level.String()
	}
}
