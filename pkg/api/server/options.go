package server

import (
	"fmt"
	"time"

	"github.com/armis/armis/pkg/audit"
	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/configstore"
	"github.com/armis/armis/pkg/events"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/stats"
	"github.com/armis/armis/pkg/store"
)

// ItemErrorPolicy decides what happens to a list item whose dispatch fails.
type ItemErrorPolicy string

const (
	// ItemErrorSubstitute keeps the original, unrendered item.
	ItemErrorSubstitute ItemErrorPolicy = "substitute"

	// ItemErrorDrop leaves the item out of the response.
	ItemErrorDrop ItemErrorPolicy = "drop"
)

// ParseItemErrorPolicy parses a policy name.
func ParseItemErrorPolicy(s string) (ItemErrorPolicy, error) {
	switch ItemErrorPolicy(s) {
	case ItemErrorSubstitute, ItemErrorDrop:
		return ItemErrorPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown item error policy %q (want substitute or drop)", s)
	}
}

// ItemErrorPolicies holds one policy per configured list.
type ItemErrorPolicies struct {
	Navigation       ItemErrorPolicy
	DashboardModules ItemErrorPolicy
	OverviewStats    ItemErrorPolicy
}

// DefaultItemErrorPolicies keeps navigation and stats items and drops
// failing dashboard modules.
func DefaultItemErrorPolicies() ItemErrorPolicies {
	return ItemErrorPolicies{
		Navigation:       ItemErrorSubstitute,
		DashboardModules: ItemErrorDrop,
		OverviewStats:    ItemErrorSubstitute,
	}
}

// Options defines configuration options for the API server.
type Options struct {
	// HTTPAddr is the address to listen on for HTTP connections.
	HTTPAddr string

	// TLSCertFile is the path to the TLS certificate file.
	TLSCertFile string

	// TLSKeyFile is the path to the TLS key file.
	TLSKeyFile string

	// EnableTLS indicates whether to enable TLS.
	EnableTLS bool

	// EnableAuth indicates whether to enable authentication.
	EnableAuth bool

	// APIKeys are static keys accepted as bearer credentials. A key holder
	// has full access.
	APIKeys []string

	// RequestTimeout bounds each dashboard request.
	RequestTimeout time.Duration

	CORSOrigins []string

	// RateLimit is the sustained requests per second; zero disables it.
	RateLimit float64
	RateBurst int

	// RefreshSchedule is the cron schedule of the configuration refresh
	// job. Empty disables it.
	RefreshSchedule string

	// AuditRetention prunes older audit entries daily. Zero keeps them.
	AuditRetention time.Duration

	// WatchConfig invalidates the cache on backend change notifications.
	WatchConfig bool

	ItemErrors ItemErrorPolicies

	Store    store.Store
	Config   *configstore.ConfigStore
	Registry *command.Registry
	Stats    stats.Source
	Audit    *audit.Log
	Bus      *events.Bus

	// Logger is the logger to use.
	Logger log.Logger
}

// DefaultOptions returns the default options for the API server.
func DefaultOptions() *Options {
	return &Options{
		HTTPAddr:        ":8080",
		RequestTimeout:  30 * time.Second,
		RefreshSchedule: "@every 1m",
		ItemErrors:      DefaultItemErrorPolicies(),
		Logger:          log.GetDefaultLogger().WithComponent("api-server"),
	}
}

// Option is a function that configures the API server options.
type Option func(*Options)

// WithHTTPAddr sets the HTTP address.
func WithHTTPAddr(addr string) Option {
	return func(o *Options) {
		o.HTTPAddr = addr
	}
}

// WithTLS enables TLS with the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(o *Options) {
		o.TLSCertFile = certFile
		o.TLSKeyFile = keyFile
		o.EnableTLS = true
	}
}

// WithAuth enables authentication with the given static API keys.
func WithAuth(apiKeys []string) Option {
	return func(o *Options) {
		o.APIKeys = apiKeys
		o.EnableAuth = true
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) { o.RequestTimeout = d }
}

func WithCORSOrigins(origins []string) Option {
	return func(o *Options) { o.CORSOrigins = origins }
}

// WithRateLimit limits the API to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Options) {
		o.RateLimit = rps
		o.RateBurst = burst
	}
}

// WithRefreshSchedule sets the refresh job schedule.
func WithRefreshSchedule(schedule string) Option {
	return func(o *Options) { o.RefreshSchedule = schedule }
}

func WithAuditRetention(d time.Duration) Option {
	return func(o *Options) { o.AuditRetention = d }
}

func WithConfigWatch(enabled bool) Option {
	return func(o *Options) { o.WatchConfig = enabled }
}

// WithItemErrorPolicies sets the per-list item error policies.
func WithItemErrorPolicies(p ItemErrorPolicies) Option {
	return func(o *Options) { o.ItemErrors = p }
}

// WithStore sets the state store holding users, tokens and policies.
func WithStore(store store.Store) Option {
	return func(o *Options) {
		o.Store = store
	}
}

// WithConfigStore sets the dashboard configuration store.
func WithConfigStore(cs *configstore.ConfigStore) Option {
	return func(o *Options) { o.Config = cs }
}

// WithRegistry sets the command registry.
func WithRegistry(reg *command.Registry) Option {
	return func(o *Options) { o.Registry = reg }
}

// WithStatsSource sets the source behind get_stats_data.
func WithStatsSource(src stats.Source) Option {
	return func(o *Options) { o.Stats = src }
}

// WithAuditLog sets the audit log behind get_audit_log.
func WithAuditLog(l *audit.Log) Option {
	return func(o *Options) { o.Audit = l }
}

// WithEventBus sets the bus streamed on /api/v1/events.
func WithEventBus(bus *events.Bus) Option {
	return func(o *Options) { o.Bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
