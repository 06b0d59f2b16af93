package types

import "time"

// Stat categories served by get_stats_data.
const (
	StatCategoryOperations = "operations"
	StatCategoryPersonnel  = "personnel"
	StatCategoryAlerts     = "alerts"
	StatCategoryMission    = "mission"
	StatCategoryAll        = "all"
)

// StatCategories lists the concrete categories in display order.
var StatCategories = []string{
	StatCategoryOperations,
	StatCategoryPersonnel,
	StatCategoryAlerts,
	StatCategoryMission,
}

// StatSnapshot holds the latest metric values for one category.
type StatSnapshot struct {
	Category  string         `json:"category" yaml:"category"`
	Metrics   map[string]any `json:"metrics" yaml:"metrics"`
	UpdatedAt time.Time      `json:"updatedAt" yaml:"updatedAt"`
}
