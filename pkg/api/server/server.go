// Package server exposes the command center over HTTP: the dashboard
// action endpoint, the live event stream, metrics and health probes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/armis/armis/pkg/api/rest"
	"github.com/armis/armis/pkg/audit"
	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/configstore"
	"github.com/armis/armis/pkg/events"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/stats"
	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/store/repos"
	"github.com/armis/armis/pkg/worker/scheduler"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DashboardPath serves every dashboard action.
	DashboardPath = "/api/v1/dashboard"

	// EventsPath streams bus events over a websocket.
	EventsPath = "/api/v1/events"

	refreshJobName    = "config-refresh"
	auditPruneJobName = "audit-prune"
	refreshTimeout    = 10 * time.Second
)

// APIServer represents the HTTP API server for ARMIS.
type APIServer struct {
	options *Options
	logger  log.Logger

	store    store.Store
	config   *configstore.ConfigStore
	registry *command.Registry
	stats    stats.Source
	audit    *audit.Log
	bus      *events.Bus

	users    *repos.UserRepo
	tokens   *repos.TokenRepo
	policies *repos.PolicyRepo

	actions   map[string]action
	upgrader  websocket.Upgrader
	handler   http.Handler
	scheduler *scheduler.Scheduler

	// HTTP server
	httpServer *http.Server
	listener   net.Listener

	// Shutdown channel
	shutdownCh chan struct{}
	stopOnce   sync.Once

	// streamMu orders event stream registration against Stop.
	streamMu sync.Mutex
	stopping bool

	// Wait group for server goroutines and event streams
	wg sync.WaitGroup
}

// New creates a new API server with the given options.
func New(opts ...Option) (*APIServer, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Config == nil {
		return nil, fmt.Errorf("config store is required")
	}
	if options.Registry == nil {
		return nil, fmt.Errorf("command registry is required")
	}
	if options.EnableAuth && options.Store == nil && len(options.APIKeys) == 0 {
		return nil, fmt.Errorf("authentication needs a state store or API keys")
	}

	logger := options.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithComponent("api-server")

	s := &APIServer{
		options:    options,
		logger:     logger,
		store:      options.Store,
		config:     options.Config,
		registry:   options.Registry,
		stats:      options.Stats,
		audit:      options.Audit,
		bus:        options.Bus,
		scheduler:  scheduler.New(logger),
		shutdownCh: make(chan struct{}),
	}
	if s.store != nil {
		s.users = repos.NewUserRepo(s.store)
		s.tokens = repos.NewTokenRepo(s.store)
		s.policies = repos.NewPolicyRepo(s.store)
	}
	s.actions = s.actionTable()
	s.upgrader = s.newUpgrader()
	s.handler = s.routes()

	s.config.OnChange(func(rev string) {
		s.bus.Publish(events.Event{
			Source: events.SourceConfig,
			Kind:   events.KindConfigChanged,
			Data:   map[string]any{"revision": rev},
		})
	})
	return s, nil
}

func (s *APIServer) routes() http.Handler {
	base := rest.Chain(
		rest.RequestID(),
		rest.Recovery(s.logger),
		rest.Logger(s.logger),
		rest.CORS(s.options.CORSOrigins),
		rest.RateLimit(s.options.RateLimit, s.options.RateBurst),
	)

	mux := http.NewServeMux()
	mux.Handle(DashboardPath, base(rest.Timeout(s.options.RequestTimeout)(http.HandlerFunc(s.handleDashboard))))
	mux.Handle(EventsPath, base(http.HandlerFunc(s.handleEvents)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, map[string]any{"status": "ok"}, "")
	})
	mux.HandleFunc("/readyz", s.handleReady)
	return mux
}

// handleReady fails while the configuration cannot be loaded.
func (s *APIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	rev, err := s.config.Revision(r.Context())
	if err != nil {
		rest.WriteJSON(w, http.StatusServiceUnavailable, errorEnvelope{Error: "NotReady", Message: err.Error()})
		return
	}
	writeSuccess(w, map[string]any{"status": "ready", "revision": rev}, "")
}

// Handler returns the root HTTP handler.
func (s *APIServer) Handler() http.Handler {
	return s.handler
}

// Start seeds built-in policies, schedules background jobs and begins
// serving. It returns once the listener is bound.
func (s *APIServer) Start(ctx context.Context) error {
	s.logger.Info("Starting ARMIS Server")

	if s.store != nil {
		if err := SeedBuiltinPolicies(ctx, s.store); err != nil {
			s.logger.Error("Failed to seed builtin policies", log.Err(err))
			return err
		}
	}

	if err := s.scheduleJobs(); err != nil {
		return err
	}
	s.scheduler.Start()

	if s.options.WatchConfig {
		if err := s.config.Watch(ctx); err != nil {
			s.logger.Warn("Configuration watch unavailable", log.Err(err))
		}
	}

	lis, err := net.Listen("tcp", s.options.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.HTTPAddr, err)
	}
	s.listener = lis
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.StdLogger(s.logger.WithComponent("http"), log.WarnLevel),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Starting HTTP server",
			log.Str("address", lis.Addr().String()),
			log.Bool("tls", s.options.EnableTLS),
			log.Bool("auth", s.options.EnableAuth))
		var err error
		if s.options.EnableTLS {
			err = s.httpServer.ServeTLS(lis, s.options.TLSCertFile, s.options.TLSKeyFile)
		} else {
			err = s.httpServer.Serve(lis)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", log.Err(err))
		}
	}()
	return nil
}

// Addr returns the bound listener address once started.
func (s *APIServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *APIServer) scheduleJobs() error {
	if s.options.RefreshSchedule != "" {
		err := s.scheduler.Schedule(scheduler.Job{
			Name:     refreshJobName,
			Schedule: s.options.RefreshSchedule,
			Timeout:  refreshTimeout,
			Run:      s.refreshConfig,
		})
		if err != nil {
			return err
		}
	}
	if s.audit != nil && s.options.AuditRetention > 0 {
		err := s.scheduler.Schedule(scheduler.Job{
			Name:     auditPruneJobName,
			Schedule: "@daily",
			Run: func(ctx context.Context) error {
				n, err := s.audit.Prune(ctx, time.Now().Add(-s.options.AuditRetention))
				if err == nil && n > 0 {
					s.logger.Info("Pruned audit entries", log.Int64("count", n))
				}
				return err
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// refreshConfig rereads the configuration so the cache stays warm and
// invalid edits surface on the event stream.
func (s *APIServer) refreshConfig(ctx context.Context) error {
	start := time.Now()
	rev, err := s.config.Refresh(ctx)
	if err != nil {
		s.bus.Publish(events.Event{
			Source: events.SourceScheduler,
			Kind:   events.KindConfigInvalid,
			Data:   map[string]any{"error": err.Error()},
		})
		return err
	}
	s.bus.Publish(events.Event{
		Source: events.SourceScheduler,
		Kind:   events.KindRefreshComplete,
		Data:   map[string]any{"revision": rev, "duration_ms": time.Since(start).Milliseconds()},
	})
	return nil
}

// Stop stops the API server gracefully.
func (s *APIServer) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping ARMIS Server")
		s.streamMu.Lock()
		s.stopping = true
		close(s.shutdownCh)
		s.streamMu.Unlock()

		s.scheduler.Stop(ctx)

		if s.httpServer != nil {
			if serr := s.httpServer.Shutdown(ctx); serr != nil {
				s.logger.Error("Error shutting down HTTP server", log.Err(serr))
				err = serr
			}
		}

		s.wg.Wait()
		s.logger.Info("ARMIS Server stopped")
	})
	return err
}
