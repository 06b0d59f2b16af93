// Package events provides a publish/subscribe bus that carries registry
// and configuration activity to live dashboard clients. Publish on a nil
// *Bus is a no-op so components can hold an optional bus.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceRegistry identifies events from the command registry.
	SourceRegistry = "registry"
	// SourceConfig identifies events from the configuration store.
	SourceConfig = "config"
	// SourceScheduler identifies events from the refresh job.
	SourceScheduler = "scheduler"
)

// Kind constants describe the type of event within a source.
const (
	// KindConfigChanged signals a new configuration revision.
	// Data: revision.
	KindConfigChanged = "config_changed"
	// KindConfigInvalid signals that a refresh found an unusable document.
	// Data: error.
	KindConfigInvalid = "config_invalid"
	// KindRefreshComplete signals a scheduled refresh finished.
	// Data: revision, duration_ms.
	KindRefreshComplete = "refresh_complete"
)

// Event is a single operational event.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast bus. Slow subscribers miss events
// rather than blocking publishers.
type Bus struct {
	mu         sync.RWMutex
	subs       map[chan Event]struct{}
	recvToSend map[<-chan Event]chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends e to every subscriber, dropping it for full ones. A zero
// timestamp is filled in.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel receiving published events. Callers must
// Unsubscribe when done.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Unknown
// channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
