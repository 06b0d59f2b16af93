package configstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/armis/armis/pkg/types"
)

const (
	listNavigation       = "navigation"
	listDashboardModules = "dashboard_modules"
	listOverviewStats    = "overview_stats"
)

// Parse decodes and structurally checks a serialized document. Every
// failure is a ConfigError.
func Parse(data []byte) (*types.ConfigDocument, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, types.NewConfigError(err, "configuration is not valid JSON")
	}
	if err := checkRaw(raw); err != nil {
		return nil, err
	}

	var doc types.ConfigDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, types.NewConfigError(err, "configuration does not match the document schema")
	}
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// checkRaw catches shape errors that typed decoding would hide, such as a
// list given as an object.
func checkRaw(raw map[string]any) error {
	if v, ok := raw["version"]; !ok || v == nil {
		return types.NewConfigError(nil, "configuration is missing required key: version")
	}
	if _, ok := raw["version"].(string); !ok {
		return types.NewConfigError(nil, "configuration version must be a string")
	}
	cmds, ok := raw["commands"]
	if !ok || cmds == nil {
		return types.NewConfigError(nil, "configuration is missing required key: commands")
	}
	cm, ok := cmds.(map[string]any)
	if !ok {
		return types.NewConfigError(nil, "configuration commands must be an object")
	}
	for _, name := range []string{listNavigation, listDashboardModules, listOverviewStats} {
		v, present := cm[name]
		if !present && name == listOverviewStats {
			continue
		}
		items, ok := v.([]any)
		if !ok {
			return types.NewConfigError(nil, "configuration commands.%s must be a list", name)
		}
		for i, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				return types.NewConfigError(nil, "configuration commands.%s[%d] must be an object", name, i)
			}
			for _, key := range []string{"id", "title"} {
				if s, _ := obj[key].(string); strings.TrimSpace(s) == "" {
					return types.NewConfigError(nil, "configuration commands.%s[%d] is missing %s", name, i, key)
				}
			}
		}
	}
	return nil
}

// Validate checks a typed document before it is cached or written.
func Validate(doc *types.ConfigDocument) error {
	if doc == nil {
		return types.NewConfigError(nil, "configuration document is empty")
	}
	if strings.TrimSpace(doc.Version) == "" {
		return types.NewConfigError(nil, "configuration is missing required key: version")
	}
	if doc.Commands == nil {
		return types.NewConfigError(nil, "configuration is missing required key: commands")
	}
	c := doc.Commands
	if c.Navigation == nil {
		return types.NewConfigError(nil, "configuration commands.%s must be a list", listNavigation)
	}
	if c.DashboardModules == nil {
		return types.NewConfigError(nil, "configuration commands.%s must be a list", listDashboardModules)
	}

	nav := make([][2]string, len(c.Navigation))
	for i, it := range c.Navigation {
		nav[i] = [2]string{it.ID, it.Title}
	}
	mods := make([][2]string, len(c.DashboardModules))
	for i, it := range c.DashboardModules {
		mods[i] = [2]string{it.ID, it.Title}
	}
	stats := make([][2]string, len(c.OverviewStats))
	for i, it := range c.OverviewStats {
		stats[i] = [2]string{it.ID, it.Title}
	}
	for _, l := range []struct {
		name  string
		items [][2]string
	}{{listNavigation, nav}, {listDashboardModules, mods}, {listOverviewStats, stats}} {
		if err := checkItems(l.name, l.items); err != nil {
			return err
		}
	}
	for i, w := range c.OverviewStats {
		if w.DataSource != "" && w.DataSource != types.DataSourceStatic && w.DataSource != types.DataSourceAPI {
			return types.NewConfigError(nil, "configuration commands.%s[%d] has unknown dataSource %q", listOverviewStats, i, w.DataSource)
		}
		if w.DataSource == types.DataSourceAPI && strings.TrimSpace(w.Endpoint) == "" {
			return types.NewConfigError(nil, "configuration commands.%s[%d] uses dataSource api without an endpoint", listOverviewStats, i)
		}
	}
	return nil
}

func checkItems(list string, items [][2]string) error {
	seen := make(map[string]int, len(items))
	for i, it := range items {
		id, title := it[0], it[1]
		if strings.TrimSpace(id) == "" {
			return types.NewConfigError(nil, "configuration commands.%s[%d] is missing id", list, i)
		}
		if strings.TrimSpace(title) == "" {
			return types.NewConfigError(nil, "configuration commands.%s[%d] is missing title", list, i)
		}
		if j, dup := seen[id]; dup {
			return types.NewConfigError(nil, "configuration commands.%s[%d] repeats id %q from item %d", list, i, id, j)
		}
		seen[id] = i
	}
	return nil
}

// Marshal serializes a document the way it is written to storage.
func Marshal(doc *types.ConfigDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, types.NewConfigError(err, "failed to serialize configuration")
	}
	return append(data, '\n'), nil
}

func describe(doc *types.ConfigDocument) string {
	if doc == nil || doc.Commands == nil {
		return "empty"
	}
	return fmt.Sprintf("%d navigation, %d modules, %d stats",
		len(doc.Commands.Navigation), len(doc.Commands.DashboardModules), len(doc.Commands.OverviewStats))
}
