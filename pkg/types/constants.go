package types

// ResourceType is the type of resource kept in the state store.
type ResourceType string

const (
	// ResourceTypeUser identifies operator accounts.
	ResourceTypeUser ResourceType = "user"

	// ResourceTypeToken identifies bearer tokens (hashed).
	ResourceTypeToken ResourceType = "token"

	// ResourceTypePolicy identifies access policies.
	ResourceTypePolicy ResourceType = "policy"

	// ResourceTypeDashboardConfig identifies the stored command-center document.
	ResourceTypeDashboardConfig ResourceType = "dashboard_config"

	// ResourceTypeStatSnapshot identifies per-category stat snapshots.
	ResourceTypeStatSnapshot ResourceType = "stat_snapshot"
)

// NamespaceSystem is the namespace every ARMIS resource lives in.
const NamespaceSystem = "system"

// DefaultOrder is the sort position of items that do not declare one.
const DefaultOrder = 999

// CommandType names a registered handler.
type CommandType = string

// Built-in command types.
const (
	CommandDashboardModule CommandType = "dashboard_module"
	CommandNavigationItem  CommandType = "navigation_item"
	CommandStatWidget      CommandType = "stat_widget"
	CommandAPIEndpoint     CommandType = "api_endpoint"
)

// Stat data sources.
const (
	DataSourceStatic = "static"
	DataSourceAPI    = "api"
)
