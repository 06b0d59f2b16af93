package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/armis/armis/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "armis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, BackendFile, cfg.Dashboard.Backend)
	assert.Equal(t, "@every 1m", cfg.Dashboard.RefreshSchedule)
	assert.Equal(t, string(types.PermissionFailOpen), cfg.Dashboard.PermissionPolicy)
	assert.Equal(t, filepath.Join(cfg.DataDir, "dashboard_config.json"), cfg.ConfigFilePath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "audit.db"), cfg.AuditPath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "store"), cfg.StorePath())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  http_address: "127.0.0.1:9000"
  request_timeout: 5s
  cors_origins: ["https://ops.example"]
data_dir: /tmp/armis-data
log:
  level: debug
  format: json
auth:
  enabled: true
  api_keys: "k1, ,k2"
dashboard:
  backend: store
  cache_ttl: 30s
  permission_policy: fail-closed
  item_errors:
    dashboard_modules: substitute
  refresh_schedule: "*/5 * * * *"
audit:
  retention: 48h
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"https://ops.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/tmp/armis-data", cfg.DataDir)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"k1", "k2"}, cfg.APIKeyList())
	assert.Equal(t, BackendStore, cfg.Dashboard.Backend)
	assert.Equal(t, 30*time.Second, cfg.Dashboard.CacheTTL)
	assert.Equal(t, "fail-closed", cfg.Dashboard.PermissionPolicy)
	assert.Equal(t, "substitute", cfg.Dashboard.ItemErrors.DashboardModules)
	// Unset keys keep their defaults.
	assert.Equal(t, "substitute", cfg.Dashboard.ItemErrors.Navigation)
	assert.Equal(t, 5*time.Second, cfg.Dashboard.StatFetchTimeout)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.Audit.Retention)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "dashboard:\n  backend: file\n")
	t.Setenv("ARMIS_DASHBOARD_BACKEND", "store")
	t.Setenv("ARMIS_SERVER_HTTP_ADDRESS", ":9999")
	t.Setenv("ARMIS_AUTH_API_KEYS", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendStore, cfg.Dashboard.Backend)
	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
	assert.Equal(t, []string{"secret"}, cfg.APIKeyList())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"backend", func(c *Config) { c.Dashboard.Backend = "s3" }, "dashboard.backend"},
		{"policy", func(c *Config) { c.Dashboard.PermissionPolicy = "maybe" }, "permission_policy"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"item errors", func(c *Config) { c.Dashboard.ItemErrors.OverviewStats = "hide" }, "dashboard.item_errors.overview_stats"},
		{"tls", func(c *Config) { c.Server.TLS.Enabled = true }, "server.tls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, types.IsValidationError(err))
			var te *types.Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.field, te.Field)
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "examples", "armis.yaml"))
	require.NoError(t, err)
	assert.Equal(t, BackendStore, cfg.Dashboard.Backend)
	assert.Equal(t, "fail-closed", cfg.Dashboard.PermissionPolicy)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, 720*time.Hour, cfg.Audit.Retention)
	assert.Equal(t, []string{"https://armis.example.mil"}, cfg.Server.CORSOrigins)
}
