package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConfigDocument is the command-center configuration: navigation entries,
// dashboard cards, overview stats and free-form UI settings.
type ConfigDocument struct {
	Version     string         `json:"version" yaml:"version"`
	LastUpdated time.Time      `json:"lastUpdated" yaml:"lastUpdated"`
	Commands    *Commands      `json:"commands" yaml:"commands"`
	Settings    map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Commands groups the three ordered item lists. A nil slice means the list
// is missing from the document.
type Commands struct {
	Navigation       []NavigationItem  `json:"navigation" yaml:"navigation"`
	DashboardModules []DashboardModule `json:"dashboard_modules" yaml:"dashboard_modules"`
	OverviewStats    []StatWidget      `json:"overview_stats" yaml:"overview_stats"`
}

// NavigationItem is one entry of the sidebar navigation.
type NavigationItem struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	URL         string   `json:"url" yaml:"url"`
	Icon        string   `json:"icon,omitempty" yaml:"icon,omitempty"`
	Order       int      `json:"order" yaml:"order"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Permissions []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// UnmarshalJSON applies the order and enabled defaults for absent keys.
func (n *NavigationItem) UnmarshalJSON(data []byte) error {
	type plain NavigationItem
	v := plain{Order: DefaultOrder, Enabled: true}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = NavigationItem(v)
	return nil
}

// DashboardModule is a card on the command-center dashboard.
type DashboardModule struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Icon        string   `json:"icon,omitempty" yaml:"icon,omitempty"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
	IconColor   string   `json:"iconColor,omitempty" yaml:"iconColor,omitempty"`
	ButtonClass string   `json:"buttonClass,omitempty" yaml:"buttonClass,omitempty"`
	ButtonText  string   `json:"buttonText,omitempty" yaml:"buttonText,omitempty"`
	Order       int      `json:"order" yaml:"order"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Permissions []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// UnmarshalJSON applies the order and enabled defaults for absent keys.
func (m *DashboardModule) UnmarshalJSON(data []byte) error {
	type plain DashboardModule
	v := plain{Order: DefaultOrder, Enabled: true}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = DashboardModule(v)
	return nil
}

// StatWidget is a headline number on the overview strip.
type StatWidget struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title" yaml:"title"`
	Icon          string   `json:"icon" yaml:"icon"`
	Color         string   `json:"color,omitempty" yaml:"color,omitempty"`
	DataSource    string   `json:"dataSource,omitempty" yaml:"dataSource,omitempty"`
	Endpoint      string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	FallbackValue any      `json:"fallbackValue,omitempty" yaml:"fallbackValue,omitempty"`
	Order         int      `json:"order" yaml:"order"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	Permissions   []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// UnmarshalJSON applies the order and enabled defaults for absent keys.
func (s *StatWidget) UnmarshalJSON(data []byte) error {
	type plain StatWidget
	v := plain{Order: DefaultOrder, Enabled: true}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = StatWidget(v)
	return nil
}

// Clone returns a deep copy of the document.
func (d *ConfigDocument) Clone() (*ConfigDocument, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to copy config document: %w", err)
	}
	var out ConfigDocument
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to copy config document: %w", err)
	}
	return &out, nil
}

// FindModule returns the index of the dashboard module with id, or -1.
func (c *Commands) FindModule(id string) int {
	if c == nil {
		return -1
	}
	for i := range c.DashboardModules {
		if c.DashboardModules[i].ID == id {
			return i
		}
	}
	return -1
}

// ToPayload converts a typed item into the generic payload map handlers
// consume.
func ToPayload(item any) (map[string]any, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
