// Package store provides the state storage interface and its badger and
// in-memory implementations.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/armis/armis/pkg/types"
)

// Store defines the interface for state storage operations.
type Store interface {
	// Open initializes and opens the store.
	Open(path string) error

	// Close closes the store and releases resources.
	Close() error

	// Create creates a new resource.
	Create(ctx context.Context, resourceType types.ResourceType, namespace string, name string, resource interface{}) error

	// Get retrieves a resource by type, namespace, and name.
	Get(ctx context.Context, resourceType types.ResourceType, namespace string, name string, resource interface{}) error

	// List retrieves all resources of a given type in a namespace.
	List(ctx context.Context, resourceType types.ResourceType, namespace string, resource interface{}) error

	// Update updates an existing resource.
	Update(ctx context.Context, resourceType types.ResourceType, namespace string, name string, resource interface{}) error

	// Delete deletes a resource.
	Delete(ctx context.Context, resourceType types.ResourceType, namespace string, name string) error

	// Watch streams changes to resources of a given type until ctx is done.
	Watch(ctx context.Context, resourceType types.ResourceType, namespace string) (<-chan WatchEvent, error)

	// Transaction executes multiple operations atomically.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// GetHistory retrieves historical versions of a resource, newest first.
	GetHistory(ctx context.Context, resourceType types.ResourceType, namespace string, name string) ([]HistoricalVersion, error)

	// GetVersion decodes a specific version of a resource into resource.
	GetVersion(ctx context.Context, resourceType types.ResourceType, namespace string, name string, version string, resource interface{}) error
}

// Transaction represents a store transaction.
type Transaction interface {
	Create(resourceType types.ResourceType, namespace string, name string, resource interface{}) error
	Get(resourceType types.ResourceType, namespace string, name string, resource interface{}) error
	Update(resourceType types.ResourceType, namespace string, name string, resource interface{}) error
	Delete(resourceType types.ResourceType, namespace string, name string) error
}

// WatchEventType defines the type of watch event.
type WatchEventType string

const (
	WatchEventCreated WatchEventType = "CREATED"
	WatchEventUpdated WatchEventType = "UPDATED"
	WatchEventDeleted WatchEventType = "DELETED"
)

// WatchEvent represents a change to a resource.
type WatchEvent struct {
	Type         WatchEventType
	ResourceType types.ResourceType
	Namespace    string
	Name         string
}

// HistoricalVersion represents a historical version of a resource.
type HistoricalVersion struct {
	Version   string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Resource  json.RawMessage `json:"resource"`
}
