package command

import (
	"context"

	"github.com/armis/armis/pkg/events"
)

// PublishTo forwards registration, execution and failure events to bus so
// live dashboards can react to them.
func PublishTo(r *Registry, bus *events.Bus) {
	forward := func(ctx context.Context, ev Event) error {
		data := map[string]any{"type": ev.Type}
		if ev.Duration > 0 {
			data["duration_ms"] = ev.Duration.Milliseconds()
		}
		if ev.Err != nil {
			data["error"] = ev.Err.Error()
		}
		if ev.Context != nil && ev.Context.RequestID != "" {
			data["request_id"] = ev.Context.RequestID
		}
		bus.Publish(events.Event{Timestamp: ev.Time, Source: events.SourceRegistry, Kind: ev.Name, Data: data})
		return nil
	}
	for _, name := range []string{EventHandlerRegistered, EventCommandExecuted, EventCommandFailed} {
		r.AddEventListener(name, forward)
	}
}
