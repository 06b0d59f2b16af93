// Package configstore owns the command-center configuration document:
// cached validated reads, filtered views and serialized read-modify-write
// updates over a pluggable backend.
package configstore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a loaded document is served from cache.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxRetries bounds compare-and-swap attempts per write.
	DefaultMaxRetries = 3
)

// ModuleValidator checks a merged dashboard module payload before it is
// persisted.
type ModuleValidator func(payload map[string]any) error

// ConfigStore is safe for concurrent use.
type ConfigStore struct {
	backend    Backend
	logger     log.Logger
	ttl        time.Duration
	policy     types.PermissionPolicy
	maxRetries int
	now        func() time.Time
	validate   ModuleValidator

	mu       sync.RWMutex
	cached   *types.ConfigDocument
	revision string
	loadedAt time.Time
	// generation moves on every Invalidate. A reload only installs its
	// document when the generation it started under is still current.
	generation uint64

	group   singleflight.Group
	writeMu sync.Mutex

	obsMu        sync.Mutex
	observers    []func(rev string)
	lastNotified string
}

// Option configures a ConfigStore.
type Option func(*ConfigStore)

// WithTTL sets the cache lifetime. Zero or negative disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(s *ConfigStore) { s.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *ConfigStore) { s.logger = logger }
}

// WithPermissionPolicy sets how callers without permissions see restricted
// dashboard modules.
func WithPermissionPolicy(p types.PermissionPolicy) Option {
	return func(s *ConfigStore) { s.policy = p }
}

// WithMaxRetries sets the number of compare-and-swap attempts per write.
func WithMaxRetries(n int) Option {
	return func(s *ConfigStore) { s.maxRetries = n }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ConfigStore) { s.now = now }
}

// WithModuleValidator installs a check run on every merged module in
// UpdateDashboardModule.
func WithModuleValidator(v ModuleValidator) Option {
	return func(s *ConfigStore) { s.validate = v }
}

// New creates a ConfigStore over backend.
func New(backend Backend, opts ...Option) *ConfigStore {
	s := &ConfigStore{
		backend:    backend,
		ttl:        DefaultTTL,
		policy:     types.PermissionFailOpen,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetDefaultLogger()
	}
	s.logger = s.logger.WithComponent("configstore")
	if s.maxRetries < 1 {
		s.maxRetries = 1
	}
	return s
}

// Policy returns the permission policy applied to dashboard modules.
func (s *ConfigStore) Policy() types.PermissionPolicy { return s.policy }

type loaded struct {
	doc *types.ConfigDocument
	rev string
}

// Load returns a copy of the configuration document. With useCache the
// cached document is returned while it is younger than the TTL.
func (s *ConfigStore) Load(ctx context.Context, useCache bool) (*types.ConfigDocument, error) {
	l, err := s.current(ctx, useCache)
	if err != nil {
		return nil, err
	}
	return l.doc.Clone()
}

// LoadWithRevision is Load plus the revision the document was read at.
func (s *ConfigStore) LoadWithRevision(ctx context.Context, useCache bool) (*types.ConfigDocument, string, error) {
	l, err := s.current(ctx, useCache)
	if err != nil {
		return nil, "", err
	}
	doc, err := l.doc.Clone()
	return doc, l.rev, err
}

// Revision returns the revision of the stored document.
func (s *ConfigStore) Revision(ctx context.Context) (string, error) {
	l, err := s.current(ctx, true)
	if err != nil {
		return "", err
	}
	return l.rev, nil
}

// current returns the shared cached document. Callers must not modify it.
func (s *ConfigStore) current(ctx context.Context, useCache bool) (*loaded, error) {
	if useCache && s.ttl > 0 {
		s.mu.RLock()
		if s.cached != nil && s.now().Sub(s.loadedAt) < s.ttl {
			l := &loaded{doc: s.cached, rev: s.revision}
			s.mu.RUnlock()
			cacheLookups.WithLabelValues("hit").Inc()
			return l, nil
		}
		s.mu.RUnlock()
	}
	cacheLookups.WithLabelValues("miss").Inc()

	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()
	v, err, _ := s.group.Do("load:"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return s.reload(ctx, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(*loaded), nil
}

func (s *ConfigStore) reload(ctx context.Context, gen uint64) (*loaded, error) {
	data, rev, err := s.backend.Read(ctx)
	if err != nil {
		backendReads.WithLabelValues("error").Inc()
		return nil, asConfigError(err, "failed to read configuration")
	}
	doc, err := Parse(data)
	if err != nil {
		backendReads.WithLabelValues("invalid").Inc()
		s.logger.Warn("Stored configuration is invalid", log.Err(err), log.Str("revision", shortRev(rev)))
		return nil, err
	}
	backendReads.WithLabelValues("ok").Inc()

	s.mu.Lock()
	if s.generation == gen {
		s.cached = doc
		s.revision = rev
		s.loadedAt = s.now()
	}
	s.mu.Unlock()

	s.logger.Debug("Configuration loaded", log.Str("revision", shortRev(rev)), log.Str("contents", describe(doc)))
	return &loaded{doc: doc, rev: rev}, nil
}

// Refresh rereads the backend bypassing the cache and notifies observers
// when the revision moved since the previous load.
func (s *ConfigStore) Refresh(ctx context.Context) (string, error) {
	s.mu.RLock()
	prev := s.revision
	s.mu.RUnlock()

	l, err := s.current(ctx, false)
	if err != nil {
		return "", err
	}
	if prev != "" && l.rev != prev {
		s.notify(l.rev)
	}
	return l.rev, nil
}

// Invalidate drops the cached document.
func (s *ConfigStore) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.revision = ""
	s.loadedAt = time.Time{}
	s.generation++
	s.mu.Unlock()
}

// OnChange registers fn to be called with the new revision after a write
// or an external change.
func (s *ConfigStore) OnChange(fn func(rev string)) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

func (s *ConfigStore) notify(rev string) {
	s.obsMu.Lock()
	if rev == s.lastNotified {
		s.obsMu.Unlock()
		return
	}
	s.lastNotified = rev
	observers := append([]func(string){}, s.observers...)
	s.obsMu.Unlock()

	for _, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Configuration observer panicked", log.Any("panic", r))
				}
			}()
			fn(rev)
		}()
	}
}

// Watch starts backend change notification when the backend supports it.
// External changes invalidate the cache and notify observers once the new
// document loads.
func (s *ConfigStore) Watch(ctx context.Context) error {
	w, ok := s.backend.(Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, func() {
		s.Invalidate()
		rev, err := s.Revision(ctx)
		if err != nil {
			s.logger.Warn("Configuration changed but could not be loaded", log.Err(err))
			return
		}
		s.notify(rev)
	})
}

// Backend returns the underlying backend.
func (s *ConfigStore) Backend() Backend { return s.backend }

// UpdateConfig validates doc, stamps lastUpdated and replaces the stored
// document. It returns the new revision.
func (s *ConfigStore) UpdateConfig(ctx context.Context, doc *types.ConfigDocument) (string, error) {
	return s.replace(ctx, doc, "")
}

// UpdateConfigIfRevision is UpdateConfig guarded by the revision the
// caller last read. A stale revision fails with a ConflictError.
func (s *ConfigStore) UpdateConfigIfRevision(ctx context.Context, doc *types.ConfigDocument, revision string) (string, error) {
	if revision == "" {
		return "", types.NewValidationError("revision", "revision is required")
	}
	return s.replace(ctx, doc, revision)
}

func (s *ConfigStore) replace(ctx context.Context, doc *types.ConfigDocument, revision string) (string, error) {
	next, err := doc.Clone()
	if err != nil {
		return "", types.NewConfigError(err, "failed to copy configuration")
	}
	if err := Validate(next); err != nil {
		return "", err
	}
	next.LastUpdated = s.now().UTC()
	data, err := Marshal(next)
	if err != nil {
		return "", err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write(ctx, data, revision)
}

// UpdateDashboardModule merges partial over the module with id, or appends
// a new module with that id. The whole document is revalidated.
func (s *ConfigStore) UpdateDashboardModule(ctx context.Context, id string, partial map[string]any) (string, error) {
	if id == "" {
		return "", types.NewMissingFieldError("module_id")
	}
	return s.mutate(ctx, func(doc *types.ConfigDocument) error {
		mod, payload, err := MergeModule(doc, id, partial)
		if err != nil {
			return err
		}
		if s.validate != nil {
			if err := s.validate(payload); err != nil {
				return err
			}
		}
		if i := doc.Commands.FindModule(id); i >= 0 {
			doc.Commands.DashboardModules[i] = mod
		} else {
			doc.Commands.DashboardModules = append(doc.Commands.DashboardModules, mod)
		}
		return nil
	})
}

// RemoveDashboardModule drops the module with id. Removing an id that is
// not present still rewrites the document.
func (s *ConfigStore) RemoveDashboardModule(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", types.NewMissingFieldError("module_id")
	}
	return s.mutate(ctx, func(doc *types.ConfigDocument) error {
		kept := make([]types.DashboardModule, 0, len(doc.Commands.DashboardModules))
		for _, m := range doc.Commands.DashboardModules {
			if m.ID != id {
				kept = append(kept, m)
			}
		}
		doc.Commands.DashboardModules = kept
		return nil
	})
}

// mutate runs a read-modify-write cycle against the backend, retrying when
// another writer got in between the read and the write.
func (s *ConfigStore) mutate(ctx context.Context, fn func(doc *types.ConfigDocument) error) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for attempt := 1; ; attempt++ {
		data, rev, err := s.backend.Read(ctx)
		if err != nil {
			return "", asConfigError(err, "failed to read configuration")
		}
		doc, err := Parse(data)
		if err != nil {
			return "", err
		}
		if err := fn(doc); err != nil {
			return "", err
		}
		if err := Validate(doc); err != nil {
			return "", err
		}
		doc.LastUpdated = s.now().UTC()
		out, err := Marshal(doc)
		if err != nil {
			return "", err
		}

		newRev, err := s.write(ctx, out, rev)
		if err == nil {
			return newRev, nil
		}
		if !errors.Is(err, types.ErrConflict) || attempt >= s.maxRetries {
			return "", err
		}
		s.logger.Info("Configuration changed during update, retrying", log.Int("attempt", attempt))
	}
}

// write must be called with writeMu held.
func (s *ConfigStore) write(ctx context.Context, data []byte, expectedRev string) (string, error) {
	rev, err := s.backend.Write(ctx, data, expectedRev)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			writes.WithLabelValues("conflict").Inc()
			return "", err
		}
		writes.WithLabelValues("error").Inc()
		return "", asConfigError(err, "failed to write configuration")
	}
	writes.WithLabelValues("ok").Inc()
	s.Invalidate()
	s.logger.Info("Configuration updated", log.Str("revision", shortRev(rev)))
	s.notify(rev)
	return rev, nil
}

// MergeModule returns the module that results from shallow-merging partial
// over the module with id (or over an empty module), together with the
// merged payload.
func MergeModule(doc *types.ConfigDocument, id string, partial map[string]any) (types.DashboardModule, map[string]any, error) {
	payload := map[string]any{}
	if doc != nil && doc.Commands != nil {
		if i := doc.Commands.FindModule(id); i >= 0 {
			p, err := types.ToPayload(doc.Commands.DashboardModules[i])
			if err != nil {
				return types.DashboardModule{}, nil, types.NewConfigError(err, "failed to encode module %s", id)
			}
			payload = p
		}
	}
	for k, v := range partial {
		payload[k] = v
	}
	payload["id"] = id

	mod, err := decodeModule(payload)
	if err != nil {
		return types.DashboardModule{}, nil, err
	}
	return mod, payload, nil
}

func asConfigError(err error, msg string) error {
	if types.KindOf(err) != "" {
		return err
	}
	return types.NewConfigError(err, "%s", msg)
}
