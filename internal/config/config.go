package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// ARMIS_SERVER_HTTP_ADDRESS.
const EnvPrefix = "ARMIS"

// Dashboard backends.
const (
	BackendFile  = "file"
	BackendStore = "store"
)

// DefaultHTTPPort is the default HTTP port for armisd.
var DefaultHTTPPort = 8080

type TLS struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	CertFile string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file"`
}

type Server struct {
	HTTPAddr       string        `mapstructure:"http_address" yaml:"http_address"`
	TLS            TLS           `mapstructure:"tls" yaml:"tls"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type Auth struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// APIKeys is a comma-separated list of static superuser keys.
	APIKeys string `mapstructure:"api_keys" yaml:"api_keys"`
}

// ItemErrors selects the failure policy (substitute or drop) per list.
type ItemErrors struct {
	Navigation       string `mapstructure:"navigation" yaml:"navigation"`
	DashboardModules string `mapstructure:"dashboard_modules" yaml:"dashboard_modules"`
	OverviewStats    string `mapstructure:"overview_stats" yaml:"overview_stats"`
}

type Dashboard struct {
	Backend          string        `mapstructure:"backend" yaml:"backend"`
	ConfigFile       string        `mapstructure:"config_file" yaml:"config_file"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	PermissionPolicy string        `mapstructure:"permission_policy" yaml:"permission_policy"`
	ItemErrors       ItemErrors    `mapstructure:"item_errors" yaml:"item_errors"`
	RefreshSchedule  string        `mapstructure:"refresh_schedule" yaml:"refresh_schedule"`
	StatFetchTimeout time.Duration `mapstructure:"stat_fetch_timeout" yaml:"stat_fetch_timeout"`
	StatsBaseURL     string        `mapstructure:"stats_base_url" yaml:"stats_base_url"`
	Watch            bool          `mapstructure:"watch" yaml:"watch"`
}

type Audit struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Path      string        `mapstructure:"path" yaml:"path"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

type Config struct {
	Server    Server    `mapstructure:"server" yaml:"server"`
	DataDir   string    `mapstructure:"data_dir" yaml:"data_dir"`
	Log       Log       `mapstructure:"log" yaml:"log"`
	Auth      Auth      `mapstructure:"auth" yaml:"auth"`
	Dashboard Dashboard `mapstructure:"dashboard" yaml:"dashboard"`
	Audit     Audit     `mapstructure:"audit" yaml:"audit"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			HTTPAddr:       fmt.Sprintf(":%d", DefaultHTTPPort),
			RequestTimeout: 30 * time.Second,
		},
		DataDir: defaultDataDir(),
		Log:     Log{Level: "info", Format: "text"},
		Dashboard: Dashboard{
			Backend:          BackendFile,
			CacheTTL:         5 * time.Minute,
			PermissionPolicy: string(types.PermissionFailOpen),
			ItemErrors: ItemErrors{
				Navigation:       "substitute",
				DashboardModules: "drop",
				OverviewStats:    "substitute",
			},
			RefreshSchedule:  "@every 1m",
			StatFetchTimeout: 5 * time.Second,
			Watch:            true,
		},
		Audit: Audit{Enabled: true, Retention: 30 * 24 * time.Hour},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "armis")
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./data"
	}
	return filepath.Join(home, ".armis")
}

// setDefaults registers every key so that environment overrides reach
// Unmarshal even when the config file does not mention them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.http_address", d.Server.HTTPAddr)
	v.SetDefault("server.tls.enabled", d.Server.TLS.Enabled)
	v.SetDefault("server.tls.cert_file", d.Server.TLS.CertFile)
	v.SetDefault("server.tls.key_file", d.Server.TLS.KeyFile)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.api_keys", d.Auth.APIKeys)
	v.SetDefault("dashboard.backend", d.Dashboard.Backend)
	v.SetDefault("dashboard.config_file", d.Dashboard.ConfigFile)
	v.SetDefault("dashboard.cache_ttl", d.Dashboard.CacheTTL)
	v.SetDefault("dashboard.permission_policy", d.Dashboard.PermissionPolicy)
	v.SetDefault("dashboard.item_errors.navigation", d.Dashboard.ItemErrors.Navigation)
	v.SetDefault("dashboard.item_errors.dashboard_modules", d.Dashboard.ItemErrors.DashboardModules)
	v.SetDefault("dashboard.item_errors.overview_stats", d.Dashboard.ItemErrors.OverviewStats)
	v.SetDefault("dashboard.refresh_schedule", d.Dashboard.RefreshSchedule)
	v.SetDefault("dashboard.stat_fetch_timeout", d.Dashboard.StatFetchTimeout)
	v.SetDefault("dashboard.stats_base_url", d.Dashboard.StatsBaseURL)
	v.SetDefault("dashboard.watch", d.Dashboard.Watch)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.path", d.Audit.Path)
	v.SetDefault("audit.retention", d.Audit.Retention)
}

// Load reads path (or armis.yaml from the standard locations when path is
// empty), applies ARMIS_* environment overrides and validates the result.
// A missing file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("armis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.armis")
		v.AddConfigPath("/etc/armis/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated values and required TLS files.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return types.NewValidationError("log.level", "%v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "pretty", "":
	default:
		return types.NewValidationError("log.format", "invalid log format %q", c.Log.Format)
	}
	switch c.Dashboard.Backend {
	case BackendFile, BackendStore:
	default:
		return types.NewValidationError("dashboard.backend", "invalid backend %q: expected %s or %s", c.Dashboard.Backend, BackendFile, BackendStore)
	}
	if _, err := types.ParsePermissionPolicy(c.Dashboard.PermissionPolicy); err != nil {
		return err
	}
	for field, p := range map[string]string{
		"dashboard.item_errors.navigation":        c.Dashboard.ItemErrors.Navigation,
		"dashboard.item_errors.dashboard_modules": c.Dashboard.ItemErrors.DashboardModules,
		"dashboard.item_errors.overview_stats":    c.Dashboard.ItemErrors.OverviewStats,
	} {
		if p != "" && p != "substitute" && p != "drop" {
			return types.NewValidationError(field, "invalid item error policy %q", p)
		}
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return types.NewValidationError("server.tls", "tls requires cert_file and key_file")
	}
	return nil
}

// StorePath is the badger directory under DataDir.
func (c *Config) StorePath() string { return filepath.Join(c.DataDir, "store") }

// ConfigFilePath is the dashboard document used by the file backend.
func (c *Config) ConfigFilePath() string {
	if c.Dashboard.ConfigFile != "" {
		return c.Dashboard.ConfigFile
	}
	return filepath.Join(c.DataDir, "dashboard_config.json")
}

// AuditPath is the SQLite audit database.
func (c *Config) AuditPath() string {
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(c.DataDir, "audit.db")
}

// APIKeyList splits the comma-separated API keys, dropping blanks.
func (c *Config) APIKeyList() []string {
	var keys []string
	for _, k := range strings.Split(c.Auth.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
