// Package stats serves the metric values shown on the command-center
// overview: persisted per-category snapshots and the fetchers that stat
// widgets use to resolve live values.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/store/repos"
	"github.com/armis/armis/pkg/types"
)

// Source returns the current metrics of a category. The "all" category
// returns every category keyed by name.
type Source interface {
	Snapshot(ctx context.Context, category string) (map[string]any, error)
}

// StoreSource keeps one snapshot per category in the state store.
type StoreSource struct {
	repo   *repos.BaseRepo[types.StatSnapshot]
	logger log.Logger
}

// NewStoreSource creates a Source backed by st.
func NewStoreSource(st store.Store, logger log.Logger) *StoreSource {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &StoreSource{
		repo:   repos.NewBaseRepo[types.StatSnapshot](st, types.ResourceTypeStatSnapshot),
		logger: logger.WithComponent("stats"),
	}
}

// ValidateCategory rejects anything but a known category or "all".
func ValidateCategory(category string) error {
	if category == types.StatCategoryAll {
		return nil
	}
	for _, c := range types.StatCategories {
		if c == category {
			return nil
		}
	}
	return types.NewValidationError("type", "unknown stats category %q", category)
}

func (s *StoreSource) Snapshot(ctx context.Context, category string) (map[string]any, error) {
	if category == "" {
		category = types.StatCategoryAll
	}
	if err := ValidateCategory(category); err != nil {
		return nil, err
	}
	if category != types.StatCategoryAll {
		snap, err := s.Get(ctx, category)
		if err != nil {
			return nil, err
		}
		return snap.Metrics, nil
	}

	out := make(map[string]any, len(types.StatCategories))
	for _, c := range types.StatCategories {
		snap, err := s.Get(ctx, c)
		if err != nil {
			return nil, err
		}
		out[c] = snap.Metrics
	}
	return out, nil
}

// Get returns the snapshot of one category. A category with no recorded
// values yields an empty snapshot.
func (s *StoreSource) Get(ctx context.Context, category string) (*types.StatSnapshot, error) {
	if err := ValidateCategory(category); err != nil {
		return nil, err
	}
	if category == types.StatCategoryAll {
		return nil, types.NewValidationError("type", "a single category is required")
	}
	snap, err := s.repo.Get(ctx, types.NamespaceSystem, category)
	if store.IsNotFoundError(err) {
		return &types.StatSnapshot{Category: category, Metrics: map[string]any{}}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read %s stats: %w", category, err)
	}
	if snap.Metrics == nil {
		snap.Metrics = map[string]any{}
	}
	return snap, nil
}

// Set merges metrics into the category snapshot and stamps it.
func (s *StoreSource) Set(ctx context.Context, category string, metrics map[string]any) (*types.StatSnapshot, error) {
	snap, err := s.Get(ctx, category)
	if err != nil {
		return nil, err
	}
	for k, v := range metrics {
		snap.Metrics[k] = v
	}
	snap.UpdatedAt = time.Now().UTC()
	if err := s.repo.Put(ctx, types.NamespaceSystem, category, snap); err != nil {
		return nil, fmt.Errorf("failed to store %s stats: %w", category, err)
	}
	s.logger.Debug("Stats snapshot updated", log.Str("category", category), log.Int("metrics", len(metrics)))
	return snap, nil
}
