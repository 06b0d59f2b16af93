package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
)

var _ Store = &MemoryStore{}

// MemoryStore is an in-memory Store used by tests and the offline CLI
// dry-run paths. Values are kept as JSON so callers never share memory with
// the store.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	versions map[string][]HistoricalVersion
	hub      *watchHub
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		versions: make(map[string][]HistoricalVersion),
		hub:      newWatchHub(log.NewNopLogger()),
	}
}

// Open is a no-op.
func (m *MemoryStore) Open(string) error { return nil }

// Close closes all watches.
func (m *MemoryStore) Close() error {
	m.hub.close()
	return nil
}

func (m *MemoryStore) Create(ctx context.Context, resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	m.mu.Lock()
	err := m.createLocked(resourceType, namespace, name, resource)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.hub.emit(WatchEvent{Type: WatchEventCreated, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(resourceType, namespace, name, resource)
}

func (m *MemoryStore) Update(ctx context.Context, resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	m.mu.Lock()
	err := m.updateLocked(resourceType, namespace, name, resource)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.hub.emit(WatchEvent{Type: WatchEventUpdated, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, resourceType types.ResourceType, namespace, name string) error {
	m.mu.Lock()
	err := m.deleteLocked(resourceType, namespace, name)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.hub.emit(WatchEvent{Type: WatchEventDeleted, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

// List returns resources ordered by key, matching badger iteration order.
func (m *MemoryStore) List(ctx context.Context, resourceType types.ResourceType, namespace string, resource interface{}) error {
	m.mu.RLock()
	prefix := string(MakePrefix(resourceType, namespace))
	keys := make([]string, 0)
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	raw := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		raw = append(raw, m.data[k])
	}
	m.mu.RUnlock()
	return UnmarshalResource(raw, resource)
}

func (m *MemoryStore) Watch(ctx context.Context, resourceType types.ResourceType, namespace string) (<-chan WatchEvent, error) {
	return m.hub.subscribe(ctx, resourceType, namespace)
}

// Transaction runs fn under the store lock. Writes made by fn are applied
// to a scratch copy and only become visible when fn succeeds.
func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx Transaction) error) error {
	m.mu.Lock()
	scratch := &MemoryStore{
		data:     make(map[string][]byte, len(m.data)),
		versions: make(map[string][]HistoricalVersion, len(m.versions)),
	}
	for k, v := range m.data {
		scratch.data[k] = v
	}
	for k, v := range m.versions {
		scratch.versions[k] = append([]HistoricalVersion(nil), v...)
	}
	tx := &memoryTransaction{store: scratch}
	if err := fn(tx); err != nil {
		m.mu.Unlock()
		return err
	}
	m.data = scratch.data
	m.versions = scratch.versions
	m.mu.Unlock()

	for _, ev := range tx.events {
		m.hub.emit(ev)
	}
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, resourceType types.ResourceType, namespace, name string) ([]HistoricalVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[string(MakeKey(resourceType, namespace, name))]
	out := make([]HistoricalVersion, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		out = append(out, vs[i])
	}
	return out, nil
}

func (m *MemoryStore) GetVersion(ctx context.Context, resourceType types.ResourceType, namespace, name, version string, resource interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.versions[string(MakeKey(resourceType, namespace, name))] {
		if v.Version == version {
			return json.Unmarshal(v.Resource, resource)
		}
	}
	return types.NewNotFoundError("version %s of %s/%s/%s not found", version, resourceType, namespace, name)
}

func (m *MemoryStore) createLocked(resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	key := string(MakeKey(resourceType, namespace, name))
	if _, ok := m.data[key]; ok {
		return alreadyExists(resourceType, namespace, name)
	}
	return m.putLocked(key, resource)
}

func (m *MemoryStore) updateLocked(resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	key := string(MakeKey(resourceType, namespace, name))
	if _, ok := m.data[key]; !ok {
		return notFound(resourceType, namespace, name)
	}
	return m.putLocked(key, resource)
}

func (m *MemoryStore) getLocked(resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	b, ok := m.data[string(MakeKey(resourceType, namespace, name))]
	if !ok {
		return notFound(resourceType, namespace, name)
	}
	return json.Unmarshal(b, resource)
}

func (m *MemoryStore) deleteLocked(resourceType types.ResourceType, namespace, name string) error {
	key := string(MakeKey(resourceType, namespace, name))
	if _, ok := m.data[key]; !ok {
		return notFound(resourceType, namespace, name)
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) putLocked(key string, resource interface{}) error {
	b, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}
	m.data[key] = b
	now := time.Now()
	m.versions[key] = append(m.versions[key], HistoricalVersion{Version: newVersionID(now), Timestamp: now, Resource: b})
	return nil
}

type memoryTransaction struct {
	store  *MemoryStore
	events []WatchEvent
}

func (t *memoryTransaction) Create(resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	if err := t.store.createLocked(resourceType, namespace, name, resource); err != nil {
		return err
	}
	t.events = append(t.events, WatchEvent{Type: WatchEventCreated, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

func (t *memoryTransaction) Get(resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	return t.store.getLocked(resourceType, namespace, name, resource)
}

func (t *memoryTransaction) Update(resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	if err := t.store.updateLocked(resourceType, namespace, name, resource); err != nil {
		return err
	}
	t.events = append(t.events, WatchEvent{Type: WatchEventUpdated, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

func (t *memoryTransaction) Delete(resourceType types.ResourceType, namespace, name string) error {
	if err := t.store.deleteLocked(resourceType, namespace, name); err != nil {
		return err
	}
	t.events = append(t.events, WatchEvent{Type: WatchEventDeleted, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}
