package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/armis/armis/internal/config"
	"github.com/armis/armis/pkg/api/server"
	"github.com/armis/armis/pkg/audit"
	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/command/handlers"
	"github.com/armis/armis/pkg/configstore"
	"github.com/armis/armis/pkg/events"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/stats"
	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/types"
)

// daemon holds the wired components of one armisd process.
type daemon struct {
	server   *server.APIServer
	config   *configstore.ConfigStore
	registry *command.Registry
	audit    *audit.Log
}

// Close releases resources that outlive the API server.
func (d *daemon) Close() error {
	if d.audit != nil {
		return d.audit.Close()
	}
	return nil
}

// newBackend selects where the dashboard document lives.
func newBackend(cfg *config.Config, st store.Store, logger log.Logger) (configstore.Backend, error) {
	switch cfg.Dashboard.Backend {
	case config.BackendFile:
		return configstore.NewFileBackend(cfg.ConfigFilePath(), logger), nil
	case config.BackendStore:
		return configstore.NewStoreBackend(st, logger), nil
	default:
		return nil, types.NewConfigError(nil, "unknown dashboard backend %q", cfg.Dashboard.Backend)
	}
}

func itemErrorPolicies(c config.ItemErrors) (server.ItemErrorPolicies, error) {
	p := server.DefaultItemErrorPolicies()
	for _, item := range []struct {
		raw string
		dst *server.ItemErrorPolicy
	}{
		{c.Navigation, &p.Navigation},
		{c.DashboardModules, &p.DashboardModules},
		{c.OverviewStats, &p.OverviewStats},
	} {
		if item.raw == "" {
			continue
		}
		v, err := server.ParseItemErrorPolicy(item.raw)
		if err != nil {
			return p, err
		}
		*item.dst = v
	}
	return p, nil
}

// newDaemon builds the registry, configuration store, audit log and API
// server on top of an already opened state store.
func newDaemon(cfg *config.Config, st store.Store, logger log.Logger) (*daemon, error) {
	policy, err := types.ParsePermissionPolicy(cfg.Dashboard.PermissionPolicy)
	if err != nil {
		return nil, err
	}
	items, err := itemErrorPolicies(cfg.Dashboard.ItemErrors)
	if err != nil {
		return nil, err
	}
	if policy == types.PermissionFailOpen {
		logger.Warn("Permission policy is fail-open: items with requirements are shown to callers without permissions")
	}

	bus := events.New()
	source := stats.NewStoreSource(st, logger)
	fetcher := stats.NewMuxFetcher(source, stats.NewHTTPFetcher(cfg.Dashboard.StatsBaseURL, cfg.Dashboard.StatFetchTimeout))

	reg := command.NewRegistry(logger)
	if err := handlers.RegisterDefaults(reg, handlers.Deps{
		Policy:       policy,
		Fetcher:      fetcher,
		FetchTimeout: cfg.Dashboard.StatFetchTimeout,
		Logger:       logger,
	}); err != nil {
		return nil, fmt.Errorf("failed to register handlers: %w", err)
	}
	reg.Use(command.ValidationMiddleware{})
	reg.Use(command.NewLoggingMiddleware(logger))
	command.PublishTo(reg, bus)

	backend, err := newBackend(cfg, st, logger)
	if err != nil {
		return nil, err
	}
	cs := configstore.New(backend,
		configstore.WithTTL(cfg.Dashboard.CacheTTL),
		configstore.WithLogger(logger),
		configstore.WithPermissionPolicy(policy),
		configstore.WithModuleValidator(handlers.ModuleValidator(reg)),
	)

	d := &daemon{config: cs, registry: reg}
	if cfg.Audit.Enabled {
		path := cfg.AuditPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		al, err := audit.Open(path, logger)
		if err != nil {
			return nil, err
		}
		al.Attach(reg)
		d.audit = al
	}

	opts := []server.Option{
		server.WithHTTPAddr(cfg.Server.HTTPAddr),
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		server.WithRefreshSchedule(cfg.Dashboard.RefreshSchedule),
		server.WithAuditRetention(cfg.Audit.Retention),
		server.WithConfigWatch(cfg.Dashboard.Watch),
		server.WithItemErrorPolicies(items),
		server.WithStore(st),
		server.WithConfigStore(cs),
		server.WithRegistry(reg),
		server.WithStatsSource(source),
		server.WithEventBus(bus),
		server.WithLogger(logger),
	}
	if d.audit != nil {
		opts = append(opts, server.WithAuditLog(d.audit))
	}
	if cfg.Server.TLS.Enabled {
		opts = append(opts, server.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}
	if cfg.Auth.Enabled {
		opts = append(opts, server.WithAuth(cfg.APIKeyList()))
	}

	srv, err := server.New(opts...)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.server = srv
	return d, nil
}
