package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
)

// Registry maps command types to handler factories. It is safe for
// concurrent use; registration normally happens once at startup.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	middleware []Middleware
	listeners  map[string][]Listener
	logger     log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Registry{
		factories: make(map[string]Factory),
		listeners: make(map[string][]Listener),
		logger:    logger.WithComponent("registry"),
	}
}

// RegisterHandler binds cmdType to factory, replacing any previous binding.
func (r *Registry) RegisterHandler(cmdType string, factory Factory) error {
	if strings.TrimSpace(cmdType) == "" {
		return types.NewRegistryError("command type must not be empty")
	}
	if factory == nil {
		return types.NewRegistryError("invalid handler factory for type %q", cmdType)
	}

	r.mu.Lock()
	_, replaced := r.factories[cmdType]
	r.factories[cmdType] = factory
	r.mu.Unlock()

	r.logger.Debug("Handler registered", log.Str("type", cmdType), log.Bool("replaced", replaced))
	r.FireEvent(context.Background(), Event{Name: EventHandlerRegistered, Type: cmdType})
	return nil
}

// Handler instantiates the handler bound to cmdType.
func (r *Registry) Handler(cmdType string) (Handler, error) {
	r.mu.RLock()
	factory, ok := r.factories[cmdType]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewRegistryError("no handler for type %q", cmdType)
	}
	h := factory()
	if h == nil {
		return nil, types.NewRegistryError("handler factory for type %q returned nil", cmdType)
	}
	return h, nil
}

// HasHandler reports whether cmdType is bound.
func (r *Registry) HasHandler(cmdType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[cmdType]
	return ok
}

// Types returns the registered command types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Use appends mw to the middleware chain. Middleware runs in the order it
// was added.
func (r *Registry) Use(mw Middleware) {
	if mw == nil {
		return
	}
	r.mu.Lock()
	r.middleware = append(r.middleware, mw)
	r.mu.Unlock()
}

// AddEventListener subscribes l to the named event.
func (r *Registry) AddEventListener(event string, l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	r.listeners[event] = append(r.listeners[event], l)
	r.mu.Unlock()
}

// FireEvent calls every listener of ev.Name in registration order. Listener
// errors and panics are logged and do not stop later listeners.
func (r *Registry) FireEvent(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	r.mu.RLock()
	ls := append([]Listener(nil), r.listeners[ev.Name]...)
	r.mu.RUnlock()

	for _, l := range ls {
		r.callListener(ctx, l, ev)
	}
}

func (r *Registry) callListener(ctx context.Context, l Listener, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			listenerFailures.WithLabelValues(ev.Name).Inc()
			r.logger.Error("Event listener panicked",
				log.Str("event", ev.Name),
				log.Str("type", ev.Type),
				log.Any("panic", p))
		}
	}()
	if err := l(ctx, ev); err != nil {
		listenerFailures.WithLabelValues(ev.Name).Inc()
		r.logger.Warn("Event listener failed",
			log.Str("event", ev.Name),
			log.Str("type", ev.Type),
			log.Err(err))
	}
}

// Execute dispatches one command: middleware, handler resolution,
// validation and execution. Any failure fires command_failed before it is
// returned. The caller's payload is never modified.
func (r *Registry) Execute(ctx context.Context, cmdType string, payload map[string]any, cctx *types.CommandContext) (*Result, error) {
	start := time.Now()
	if cctx == nil {
		cctx = &types.CommandContext{}
	}
	if payload == nil {
		payload = map[string]any{}
	}

	label := cmdType
	if !r.HasHandler(cmdType) {
		label = "unregistered"
	}

	res, err := r.dispatch(ctx, cmdType, payload, cctx)
	elapsed := time.Since(start)
	commandDuration.WithLabelValues(label).Observe(elapsed.Seconds())

	if err != nil {
		status := string(types.KindOf(err))
		if status == "" {
			status = "error"
		}
		commandTotal.WithLabelValues(label, status).Inc()
		r.FireEvent(ctx, Event{
			Name:     EventCommandFailed,
			Type:     cmdType,
			Payload:  payload,
			Err:      err,
			Context:  cctx,
			Duration: elapsed,
		})
		return nil, err
	}

	commandTotal.WithLabelValues(label, "ok").Inc()
	r.FireEvent(ctx, Event{
		Name:     EventCommandExecuted,
		Type:     cmdType,
		Result:   res,
		Context:  cctx,
		Duration: elapsed,
	})
	return res, nil
}

func (r *Registry) dispatch(ctx context.Context, cmdType string, payload map[string]any, cctx *types.CommandContext) (res *Result, err error) {
	r.mu.RLock()
	chain := append([]Middleware(nil), r.middleware...)
	r.mu.RUnlock()

	for _, mw := range chain {
		next, err := mw.Process(ctx, cmdType, payload, cctx)
		if err != nil {
			return nil, err
		}
		if next != nil {
			payload = next
		}
	}

	r.FireEvent(ctx, Event{Name: EventCommandExecuting, Type: cmdType, Payload: payload, Context: cctx})

	h, err := r.Handler(cmdType)
	if err != nil {
		return nil, err
	}
	if err := h.Validate(payload); err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Handler panicked", log.Str("type", cmdType), log.Any("panic", p))
			res, err = nil, fmt.Errorf("handler for %q panicked: %v", cmdType, p)
		}
	}()
	return h.Execute(ctx, payload, cctx)
}
