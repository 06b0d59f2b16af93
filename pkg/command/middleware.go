package command

import (
	"context"
	"html"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
)

// ValidationMiddleware HTML-escapes every string in the payload, including
// strings nested in maps and lists. Other values pass through.
type ValidationMiddleware struct{}

func (ValidationMiddleware) Process(ctx context.Context, cmdType string, payload map[string]any, cctx *types.CommandContext) (map[string]any, error) {
	return escapeMap(payload), nil
}

func escapeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = escapeValue(v)
	}
	return out
}

func escapeValue(v any) any {
	switch t := v.(type) {
	case string:
		return html.EscapeString(t)
	case map[string]any:
		return escapeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = escapeValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = html.EscapeString(e)
		}
		return out
	default:
		return v
	}
}

// LoggingMiddleware records each dispatch. It never changes the payload
// and never fails.
type LoggingMiddleware struct {
	Logger log.Logger
}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware(logger log.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &LoggingMiddleware{Logger: logger.WithComponent("command")}
}

func (m *LoggingMiddleware) Process(ctx context.Context, cmdType string, payload map[string]any, cctx *types.CommandContext) (map[string]any, error) {
	userID := "anonymous"
	if cctx != nil && cctx.UserID != "" {
		userID = cctx.UserID
	}
	ts := time.Now().UTC()
	if cctx != nil && !cctx.Timestamp.IsZero() {
		ts = cctx.Timestamp
	}
	fields := []log.Field{
		log.Str("command", cmdType),
		log.Str(log.UserIDKey, userID),
		log.Time("timestamp", ts),
		log.Int("fields", len(payload)),
	}
	if cctx != nil && cctx.RequestID != "" {
		fields = append(fields, log.RequestID(cctx.RequestID))
	}
	m.Logger.Info("Command dispatched", fields...)
	return payload, nil
}
