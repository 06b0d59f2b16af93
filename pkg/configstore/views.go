package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/armis/armis/pkg/types"
)

// ListOptions controls the filtered views.
type ListOptions struct {
	// IncludeDisabled keeps items with enabled=false.
	IncludeDisabled bool

	// Permissions is the caller's permission set. Only dashboard modules
	// are filtered on it.
	Permissions []string
}

// GetNavigation returns navigation items, enabled only unless
// IncludeDisabled, stably sorted by order.
func (s *ConfigStore) GetNavigation(ctx context.Context, opts ListOptions) ([]types.NavigationItem, error) {
	l, err := s.current(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]types.NavigationItem, 0, len(l.doc.Commands.Navigation))
	for _, it := range l.doc.Commands.Navigation {
		if it.Enabled || opts.IncludeDisabled {
			it.Permissions = append([]string(nil), it.Permissions...)
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// GetDashboardModules returns the modules visible to a caller holding
// opts.Permissions, stably sorted by order.
func (s *ConfigStore) GetDashboardModules(ctx context.Context, opts ListOptions) ([]types.DashboardModule, error) {
	l, err := s.current(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]types.DashboardModule, 0, len(l.doc.Commands.DashboardModules))
	for _, it := range l.doc.Commands.DashboardModules {
		if !it.Enabled && !opts.IncludeDisabled {
			continue
		}
		if !s.policy.Allows(it.Permissions, opts.Permissions) {
			continue
		}
		it.Permissions = append([]string(nil), it.Permissions...)
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// GetOverviewStats returns stat widgets, enabled only unless
// IncludeDisabled, stably sorted by order.
func (s *ConfigStore) GetOverviewStats(ctx context.Context, opts ListOptions) ([]types.StatWidget, error) {
	l, err := s.current(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]types.StatWidget, 0, len(l.doc.Commands.OverviewStats))
	for _, it := range l.doc.Commands.OverviewStats {
		if it.Enabled || opts.IncludeDisabled {
			it.Permissions = append([]string(nil), it.Permissions...)
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// GetSettings returns a copy of the settings map.
func (s *ConfigStore) GetSettings(ctx context.Context) (map[string]any, error) {
	l, err := s.current(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(l.doc.Settings))
	for k, v := range l.doc.Settings {
		out[k] = v
	}
	return out, nil
}

func decodeModule(payload map[string]any) (types.DashboardModule, error) {
	var mod types.DashboardModule
	b, err := json.Marshal(payload)
	if err != nil {
		return mod, types.NewValidationError("module_data", "module data cannot be encoded: %v", err)
	}
	if err := json.Unmarshal(b, &mod); err != nil {
		field := "module_data"
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			field = te.Field
		}
		return mod, types.NewValidationError(field, "invalid module data: %v", err)
	}
	return mod, nil
}
