package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
)

// watchHub fans change events out to watchers keyed by resource type and
// namespace. An empty namespace watches every namespace.
type watchHub struct {
	mu     sync.Mutex
	conns  map[string][]chan WatchEvent
	closed bool
	logger log.Logger
}

func newWatchHub(logger log.Logger) *watchHub {
	return &watchHub{conns: make(map[string][]chan WatchEvent), logger: logger}
}

func watchKey(resourceType types.ResourceType, namespace string) string {
	return fmt.Sprintf("%s:%s", resourceType, namespace)
}

func (h *watchHub) subscribe(ctx context.Context, resourceType types.ResourceType, namespace string) (<-chan WatchEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("store is closed, cannot create new watch")
	}

	ch := make(chan WatchEvent, 16)
	key := watchKey(resourceType, namespace)
	h.conns[key] = append(h.conns[key], ch)

	go func() {
		<-ctx.Done()
		h.remove(key, ch)
	}()
	return ch, nil
}

func (h *watchHub) remove(key string, ch chan WatchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[key]
	for i, c := range conns {
		if c == ch {
			h.conns[key] = append(conns[:i], conns[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.conns[key]) == 0 {
		delete(h.conns, key)
	}
}

func (h *watchHub) emit(ev WatchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, key := range []string{watchKey(ev.ResourceType, ev.Namespace), watchKey(ev.ResourceType, "")} {
		for _, ch := range h.conns[key] {
			select {
			case ch <- ev:
			default:
				h.logger.Warn("Watch channel is full, dropping event",
					log.Str("type", string(ev.Type)),
					log.Str("resourceType", string(ev.ResourceType)),
					log.Str("name", ev.Name))
			}
		}
	}
}

func (h *watchHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, conns := range h.conns {
		for _, ch := range conns {
			close(ch)
		}
	}
	h.conns = nil
}
