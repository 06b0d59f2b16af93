package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/armis/armis/internal/config"
	"github.com/armis/armis/pkg/api/server"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/version"
)

const shutdownTimeout = 15 * time.Second

var (
	configFile     = flag.String("config", "", "Configuration file path")
	httpAddr       = flag.String("http-addr", "", "HTTP server address")
	dataDir        = flag.String("data-dir", "", "Data directory holding the state store, audit log and dashboard document")
	dashboardFile  = flag.String("dashboard-config", "", "Dashboard configuration document (file backend)")
	backendName    = flag.String("backend", "", "Dashboard configuration backend (file, store)")
	logLevel       = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	debugLogLevel  = flag.Bool("debug", false, "Enable debug mode (shorthand for --log-level=debug)")
	logFormat      = flag.String("log-format", "", "Log format (text, json)")
	apiKeys        = flag.String("api-keys", "", "Comma-separated list of API keys; enables authentication")
	adminName      = flag.String("admin-name", "admin", "Name of the bootstrap admin user")
	adminEmail     = flag.String("admin-email", "", "Email of the bootstrap admin user")
	adminTokenFile = flag.String("admin-token-out", "", "Write the bootstrap admin token to this file instead of stdout")
	showHelp       = flag.Bool("help", false, "Show help")
	showVer        = flag.Bool("version", false, "Show version")
)

// loadConfig reads the file and environment through config.Load, then
// applies flags the user set explicitly. Precedence is flags > env > file
// > defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["http-addr"] {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if set["data-dir"] {
		cfg.DataDir = *dataDir
	}
	if set["dashboard-config"] {
		cfg.Dashboard.ConfigFile = *dashboardFile
	}
	if set["backend"] {
		cfg.Dashboard.Backend = *backendName
	}
	if set["log-level"] {
		cfg.Log.Level = *logLevel
	}
	if *debugLogLevel {
		cfg.Log.Level = "debug"
	}
	if set["log-format"] {
		cfg.Log.Format = *logFormat
	}
	if set["api-keys"] {
		cfg.Auth.APIKeys = *apiKeys
		cfg.Auth.Enabled = true
	}
	return cfg, cfg.Validate()
}

func main() {
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}
	if *showVer {
		fmt.Println(version.Info())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log settings: %v\n", err)
		os.Exit(1)
	}
	log.SetDefaultLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("ARMIS server failed", log.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger log.Logger) error {
	logger.Info("Starting ARMIS server", log.Str("version", version.Version), log.Str("data_dir", cfg.DataDir))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeDir := cfg.StorePath()
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", storeDir, err)
	}

	logger.Info("Initializing state store", log.Str("path", storeDir))
	st := store.NewBadgerStore(logger)
	if err := st.Open(storeDir); err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	if err := server.SeedBuiltinPolicies(ctx, st); err != nil {
		return fmt.Errorf("failed to seed policies: %w", err)
	}

	if cfg.Auth.Enabled {
		logger.Info("Authentication enabled", log.Int("api_keys", len(cfg.APIKeyList())))
		if err := ensureBootstrapAdmin(ctx, st, *adminName, *adminEmail, *adminTokenFile, logger); err != nil {
			return fmt.Errorf("failed to bootstrap admin: %w", err)
		}
	} else {
		logger.Warn("Authentication disabled")
	}

	d, err := newDaemon(cfg, st, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if _, err := d.config.Load(ctx, false); err != nil {
		// The server still starts; /readyz reports the problem until the
		// document is fixed.
		logger.Warn("Dashboard configuration not loadable", log.Str("backend", cfg.Dashboard.Backend), log.Err(err))
	}

	if err := d.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	logger.Info("ARMIS server listening", log.Str("addr", d.server.Addr()))

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop API server", log.Err(err))
	}
	logger.Info("ARMIS server stopped")
	return nil
}
