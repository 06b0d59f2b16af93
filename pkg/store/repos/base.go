// Package repos provides typed repositories over the core store.
package repos

import (
	"context"

	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/types"
)

// BaseRepo provides common CRUD over the core store for a specific resource type.
// T is the typed payload struct (e.g., types.User, types.StatSnapshot).
type BaseRepo[T any] struct {
	core         store.Store
	resourceType types.ResourceType
}

func NewBaseRepo[T any](core store.Store, rt types.ResourceType) *BaseRepo[T] {
	return &BaseRepo[T]{core: core, resourceType: rt}
}

func (r *BaseRepo[T]) Create(ctx context.Context, namespace, name string, obj *T) error {
	return r.core.Create(ctx, r.resourceType, namespace, name, obj)
}

func (r *BaseRepo[T]) Get(ctx context.Context, namespace, name string) (*T, error) {
	var out T
	if err := r.core.Get(ctx, r.resourceType, namespace, name, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *BaseRepo[T]) Update(ctx context.Context, namespace, name string, obj *T) error {
	return r.core.Update(ctx, r.resourceType, namespace, name, obj)
}

// Put creates the resource or replaces the existing one.
func (r *BaseRepo[T]) Put(ctx context.Context, namespace, name string, obj *T) error {
	return r.core.Transaction(ctx, func(tx store.Transaction) error {
		var existing T
		err := tx.Get(r.resourceType, namespace, name, &existing)
		if store.IsNotFoundError(err) {
			return tx.Create(r.resourceType, namespace, name, obj)
		} else if err != nil {
			return err
		}
		return tx.Update(r.resourceType, namespace, name, obj)
	})
}

func (r *BaseRepo[T]) Delete(ctx context.Context, namespace, name string) error {
	return r.core.Delete(ctx, r.resourceType, namespace, name)
}

// List returns typed list within a namespace
func (r *BaseRepo[T]) List(ctx context.Context, namespace string) ([]*T, error) {
	var items []T
	if err := r.core.List(ctx, r.resourceType, namespace, &items); err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(items))
	for i := range items {
		out = append(out, &items[i])
	}
	return out, nil
}

// Watch proxies to the core store
func (r *BaseRepo[T]) Watch(ctx context.Context, namespace string) (<-chan store.WatchEvent, error) {
	return r.core.Watch(ctx, r.resourceType, namespace)
}

func (r *BaseRepo[T]) GetHistory(ctx context.Context, namespace, name string) ([]store.HistoricalVersion, error) {
	return r.core.GetHistory(ctx, r.resourceType, namespace, name)
}

func (r *BaseRepo[T]) GetVersion(ctx context.Context, namespace, name, version string) (*T, error) {
	var out T
	if err := r.core.GetVersion(ctx, r.resourceType, namespace, name, version, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *BaseRepo[T]) Core() store.Store { return r.core }
