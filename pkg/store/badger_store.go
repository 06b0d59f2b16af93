package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
	"github.com/dgraph-io/badger/v4"
)

var _ Store = &BadgerStore{}

// BadgerStore implements the Store interface using BadgerDB. Every write
// also records a version entry so that history survives updates and
// deletes.
type BadgerStore struct {
	db     *badger.DB
	path   string
	logger log.Logger
	hub    *watchHub
}

// NewBadgerStore creates a new BadgerDB-backed store.
func NewBadgerStore(logger log.Logger) *BadgerStore {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithComponent("store")
	return &BadgerStore{logger: logger, hub: newWatchHub(logger)}
}

// Open opens the BadgerDB database at path. An empty path opens an
// in-memory database.
func (s *BadgerStore) Open(path string) error {
	s.path = path

	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = log.Printf{Logger: s.logger, Prefix: "badger: "}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger db: %w", err)
	}
	s.db = db
	s.logger.Info("State store opened", log.Str("path", path))
	return nil
}

// Close closes the BadgerDB database.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("Closing state store", log.Str("path", s.path))
	s.hub.close()
	err := s.db.Close()
	s.db = nil
	return err
}

// Create creates a new resource.
func (s *BadgerStore) Create(ctx context.Context, resourceType types.ResourceType, namespace string, name string, resource interface{}) error {
	s.logger.Debug("Creating resource",
		log.Str("resourceType", string(resourceType)),
		log.Str("namespace", namespace),
		log.Str("name", name))

	err := s.db.Update(func(txn *badger.Txn) error {
		return createInTxn(txn, resourceType, namespace, name, resource)
	})
	if err != nil {
		return err
	}
	s.hub.emit(WatchEvent{Type: WatchEventCreated, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

// Get retrieves a resource.
func (s *BadgerStore) Get(ctx context.Context, resourceType types.ResourceType, namespace string, name string, resource interface{}) error {
	return s.db.View(func(txn *badger.Txn) error {
		return getInTxn(txn, resourceType, namespace, name, resource)
	})
}

// Update updates an existing resource.
func (s *BadgerStore) Update(ctx context.Context, resourceType types.ResourceType, namespace string, name string, resource interface{}) error {
	s.logger.Debug("Updating resource",
		log.Str("resourceType", string(resourceType)),
		log.Str("namespace", namespace),
		log.Str("name", name))

	err := s.db.Update(func(txn *badger.Txn) error {
		return updateInTxn(txn, resourceType, namespace, name, resource)
	})
	if err != nil {
		return err
	}
	s.hub.emit(WatchEvent{Type: WatchEventUpdated, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

// Delete deletes a resource. Versions are kept.
func (s *BadgerStore) Delete(ctx context.Context, resourceType types.ResourceType, namespace string, name string) error {
	s.logger.Debug("Deleting resource",
		log.Str("resourceType", string(resourceType)),
		log.Str("namespace", namespace),
		log.Str("name", name))

	err := s.db.Update(func(txn *badger.Txn) error {
		return deleteInTxn(txn, resourceType, namespace, name)
	})
	if err != nil {
		return err
	}
	s.hub.emit(WatchEvent{Type: WatchEventDeleted, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

// List retrieves all resources of a given type in a namespace.
func (s *BadgerStore) List(ctx context.Context, resourceType types.ResourceType, namespace string, resource interface{}) error {
	var raw []json.RawMessage
	prefix := MakePrefix(resourceType, namespace)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read resource: %w", err)
			}
			raw = append(raw, val)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if raw == nil {
		raw = []json.RawMessage{}
	}
	return UnmarshalResource(raw, resource)
}

// Transaction executes fn inside one badger read-write transaction. Watch
// events are emitted only after a successful commit.
func (s *BadgerStore) Transaction(ctx context.Context, fn func(tx Transaction) error) error {
	tx := &BadgerTransaction{}
	err := s.db.Update(func(txn *badger.Txn) error {
		tx.txn = txn
		return fn(tx)
	})
	if err != nil {
		return err
	}
	for _, ev := range tx.events {
		s.hub.emit(ev)
	}
	return nil
}

// GetHistory retrieves historical versions of a resource, newest first.
func (s *BadgerStore) GetHistory(ctx context.Context, resourceType types.ResourceType, namespace string, name string) ([]HistoricalVersion, error) {
	var versions []HistoricalVersion
	prefix := MakeVersionPrefix(resourceType, namespace, name)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			var v HistoricalVersion
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return fmt.Errorf("failed to deserialize version: %w", err)
			}
			versions = append(versions, v)
		}
		return nil
	})
	return versions, err
}

// GetVersion decodes one historical version into resource.
func (s *BadgerStore) GetVersion(ctx context.Context, resourceType types.ResourceType, namespace string, name string, version string, resource interface{}) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(MakeVersionKey(resourceType, namespace, name, version))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.NewNotFoundError("version %s of %s/%s/%s not found", version, resourceType, namespace, name)
		} else if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		return item.Value(func(val []byte) error {
			var v HistoricalVersion
			if err := json.Unmarshal(val, &v); err != nil {
				return fmt.Errorf("failed to deserialize version: %w", err)
			}
			return json.Unmarshal(v.Resource, resource)
		})
	})
}

// Watch streams changes to resources of a given type.
func (s *BadgerStore) Watch(ctx context.Context, resourceType types.ResourceType, namespace string) (<-chan WatchEvent, error) {
	return s.hub.subscribe(ctx, resourceType, namespace)
}

// BadgerTransaction implements the Transaction interface.
type BadgerTransaction struct {
	txn    *badger.Txn
	events []WatchEvent
}

func (t *BadgerTransaction) Create(resourceType types.ResourceType, namespace string, name string, resource interface{}) error {
	if err := createInTxn(t.txn, resourceType, namespace, name, resource); err != nil {
		return err
	}
	t.events = append(t.events, WatchEvent{Type: WatchEventCreated, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

func (t *BadgerTransaction) Get(resourceType types.ResourceType, namespace string, name string, resource interface{}) error {
	return getInTxn(t.txn, resourceType, namespace, name, resource)
}

func (t *BadgerTransaction) Update(resourceType types.ResourceType, namespace string, name string, resource interface{}) error {
	if err := updateInTxn(t.txn, resourceType, namespace, name, resource); err != nil {
		return err
	}
	t.events = append(t.events, WatchEvent{Type: WatchEventUpdated, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

func (t *BadgerTransaction) Delete(resourceType types.ResourceType, namespace string, name string) error {
	if err := deleteInTxn(t.txn, resourceType, namespace, name); err != nil {
		return err
	}
	t.events = append(t.events, WatchEvent{Type: WatchEventDeleted, ResourceType: resourceType, Namespace: namespace, Name: name})
	return nil
}

func createInTxn(txn *badger.Txn, resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	key := MakeKey(resourceType, namespace, name)
	_, err := txn.Get(key)
	if err == nil {
		return alreadyExists(resourceType, namespace, name)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to check existing resource: %w", err)
	}
	return putWithVersion(txn, resourceType, namespace, name, resource)
}

func updateInTxn(txn *badger.Txn, resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	_, err := txn.Get(MakeKey(resourceType, namespace, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound(resourceType, namespace, name)
	} else if err != nil {
		return fmt.Errorf("failed to check existing resource: %w", err)
	}
	return putWithVersion(txn, resourceType, namespace, name, resource)
}

func getInTxn(txn *badger.Txn, resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	item, err := txn.Get(MakeKey(resourceType, namespace, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound(resourceType, namespace, name)
	} else if err != nil {
		return fmt.Errorf("failed to get resource: %w", err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, resource)
	})
}

func deleteInTxn(txn *badger.Txn, resourceType types.ResourceType, namespace, name string) error {
	key := MakeKey(resourceType, namespace, name)
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound(resourceType, namespace, name)
	} else if err != nil {
		return fmt.Errorf("failed to check existing resource: %w", err)
	}
	if err := txn.Delete(key); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

func putWithVersion(txn *badger.Txn, resourceType types.ResourceType, namespace, name string, resource interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}
	if err := txn.Set(MakeKey(resourceType, namespace, name), data); err != nil {
		return fmt.Errorf("failed to store resource: %w", err)
	}

	now := time.Now()
	version := HistoricalVersion{Version: newVersionID(now), Timestamp: now, Resource: data}
	versionData, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("failed to serialize version: %w", err)
	}
	if err := txn.Set(MakeVersionKey(resourceType, namespace, name, version.Version), versionData); err != nil {
		return fmt.Errorf("failed to store version: %w", err)
	}
	return nil
}
