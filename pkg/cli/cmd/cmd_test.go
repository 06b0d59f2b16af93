package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/armis/armis/pkg/audit"
	"github.com/armis/armis/pkg/cli/format"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDocument = `{
  "version": "2.1",
  "commands": {
    "navigation": [{"id": "home", "title": "Home", "url": "/", "order": 1}],
    "dashboard_modules": [{"id": "ops", "title": "Operations", "description": "Daily ops", "order": 1}],
    "overview_stats": [{"id": "ready", "title": "Ready", "icon": "fa-check", "dataSource": "static", "fallbackValue": 3}]
  },
  "settings": {"theme": "dark"}
}`

// The module lacks a description, which its handler rejects.
const itemErrorDocument = `{
  "version": "1.0",
  "commands": {
    "navigation": [],
    "dashboard_modules": [{"id": "draft", "title": "Draft"}]
  }
}`

func TestMain(m *testing.M) {
	format.EnableColor(false)
	os.Exit(m.Run())
}

// run executes the CLI against dataDir and returns its combined output.
func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--data-dir", dataDir, "--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "config", "validate", writeDoc(t, validDocument))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	_, err = run(t, dir, "config", "validate", filepath.Join("..", "..", "..", "examples", "dashboard_config.json"))
	require.NoError(t, err)

	out, err = run(t, dir, "config", "validate", writeDoc(t, itemErrorDocument))
	require.Error(t, err)
	assert.Contains(t, out, "dashboard_modules/draft")
	assert.Contains(t, out, "ValidationError")

	out, err = run(t, dir, "config", "validate", "--json", writeDoc(t, `{"version": "1.0"}`))
	require.Error(t, err)
	var report format.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, string(types.KindConfig), report.Issues[0].Kind)
}

func TestConfigImportExportFileBackend(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "config", "import", writeDoc(t, validDocument))
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration imported into file backend")
	assert.FileExists(t, filepath.Join(dir, "dashboard_config.json"))

	out, err = run(t, dir, "config", "export")
	require.NoError(t, err)
	var doc types.ConfigDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "2.1", doc.Version)
	assert.False(t, doc.LastUpdated.IsZero())

	out, err = run(t, dir, "config", "export", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "dashboard_modules:")
	assert.Contains(t, out, "theme: dark")

	_, err = run(t, dir, "config", "export", "-o", "toml")
	assert.True(t, types.IsValidationError(err))

	// Invalid documents never reach the backend.
	_, err = run(t, dir, "config", "import", writeDoc(t, `{"version": "1.0"}`))
	require.Error(t, err)

	_, err = run(t, dir, "config", "history")
	assert.ErrorContains(t, err, "keeps no history")
}

func TestConfigHistoryStoreBackend(t *testing.T) {
	dir := t.TempDir()
	doc := writeDoc(t, validDocument)

	_, err := run(t, dir, "--backend", "store", "config", "import", doc)
	require.NoError(t, err)
	_, err = run(t, dir, "--backend", "store", "config", "import", "--if-revision", "1", doc)
	require.NoError(t, err)

	_, err = run(t, dir, "--backend", "store", "config", "import", "--if-revision", "1", doc)
	assert.True(t, types.KindOf(err) == types.KindConflict, "got %v", err)

	out, err := run(t, dir, "--backend", "store", "config", "history", "--json")
	require.NoError(t, err)
	var entries []struct {
		Revision string `json:"revision"`
		Version  string `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[0].Revision)
	assert.Equal(t, "2.1", entries[1].Version)

	out, err = run(t, dir, "--backend", "store", "config", "export", "--revision", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "2.1"`)
}

func TestUsersTokensAndPolicies(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "policy", "list")
	require.NoError(t, err)
	for _, name := range []string{"root", "admin", "readwrite", "readonly"} {
		assert.Contains(t, out, name)
	}

	_, err = run(t, dir, "policy", "create", "intel", "--rule", "dashboard:get,list", "--permission", "intel.read")
	require.NoError(t, err)
	_, err = run(t, dir, "policy", "create", "broken", "--rule", "dashboard")
	assert.True(t, types.IsValidationError(err))
	_, err = run(t, dir, "policy", "delete", "readonly")
	assert.True(t, types.KindOf(err) == types.KindForbidden, "got %v", err)

	_, err = run(t, dir, "user", "create", "alice", "--policy", "readonly", "--policy", "intel")
	require.NoError(t, err)
	_, err = run(t, dir, "user", "create", "bob", "--policy", "missing")
	assert.True(t, types.IsValidationError(err))

	out, err = run(t, dir, "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "readonly,intel")
	assert.NotContains(t, out, "bob")

	secretFile := filepath.Join(t.TempDir(), "alice.token")
	_, err = run(t, dir, "token", "issue", "--user", "alice", "--ttl", "1h", "--out-file", secretFile)
	require.NoError(t, err)
	secret, err := os.ReadFile(secretFile)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	_, err = run(t, dir, "token", "issue", "--user", "nobody")
	require.Error(t, err)

	out, err = run(t, dir, "token", "list", "--json")
	require.NoError(t, err)
	var tokens []types.Token
	require.NoError(t, json.Unmarshal([]byte(out), &tokens))
	require.Len(t, tokens, 1)
	assert.Equal(t, "alice-token", tokens[0].Name)
	assert.Empty(t, tokens[0].SecretHash)

	_, err = run(t, dir, "token", "revoke", tokens[0].ID)
	require.NoError(t, err)
	out, err = run(t, dir, "token", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked")
}

func TestStats(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "stats", "set", "alerts", "open=7", "ratio=0.5", "armed=true", "shift=night")
	require.NoError(t, err)

	out, err := run(t, dir, "stats", "show", "alerts", "--json")
	require.NoError(t, err)
	var metrics map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &metrics))
	assert.EqualValues(t, 7, metrics["open"])
	assert.EqualValues(t, 0.5, metrics["ratio"])
	assert.Equal(t, true, metrics["armed"])
	assert.Equal(t, "night", metrics["shift"])

	out, err = run(t, dir, "stats", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "alerts")
	assert.Contains(t, out, "night")

	_, err = run(t, dir, "stats", "set", "all", "x=1")
	assert.True(t, types.IsValidationError(err))
	_, err = run(t, dir, "stats", "set", "weather", "x=1")
	assert.True(t, types.IsValidationError(err))
	_, err = run(t, dir, "stats", "set", "alerts", "novalue")
	assert.True(t, types.IsValidationError(err))
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		key  string
		want any
	}{
		{"a=1", "a", int64(1)},
		{"b=-2.5", "b", -2.5},
		{"c=false", "c", false},
		{"d=hello world", "d", "hello world"},
		{" e =", "e", ""},
	}
	for _, tt := range tests {
		k, v, err := parseMetric(tt.in)
		if err != nil {
			t.Fatalf("parseMetric(%q): %v", tt.in, err)
		}
		if k != tt.key || v != tt.want {
			t.Fatalf("parseMetric(%q) = %q, %#v; want %q, %#v", tt.in, k, v, tt.key, tt.want)
		}
	}
}

func TestAuditTail(t *testing.T) {
	dir := t.TempDir()
	al, err := audit.Open(filepath.Join(dir, "audit.db"), log.NewTestLogger())
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	require.NoError(t, al.Record(ctx, audit.Entry{Time: base, Type: "stat_widget", Status: "ok", Action: "get_overview_stats"}))
	require.NoError(t, al.Record(ctx, audit.Entry{Time: base.Add(time.Second), Type: "dashboard_module", Status: "ValidationError", Error: "missing description", UserID: "u-1"}))
	require.NoError(t, al.Close())

	out, err := run(t, dir, "audit", "tail", "-n", "1", "--json")
	require.NoError(t, err)
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "dashboard_module", entries[0].Type)

	out, err = run(t, dir, "audit", "tail")
	require.NoError(t, err)
	assert.Contains(t, out, "stat_widget")
	assert.Contains(t, out, "missing description")
}

func TestVersion(t *testing.T) {
	out, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ARMIS "))
}
