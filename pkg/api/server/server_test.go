package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/armis/armis/pkg/audit"
	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/command/handlers"
	"github.com/armis/armis/pkg/configstore"
	"github.com/armis/armis/pkg/events"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/stats"
	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/store/repos"
	"github.com/armis/armis/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv    *APIServer
	ts     *httptest.Server
	st     store.Store
	cs     *configstore.ConfigStore
	reg    *command.Registry
	src    *stats.StoreSource
	bus    *events.Bus
	path   string
	logger *log.TestLogger
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := log.NewTestLogger()

	data, err := os.ReadFile(filepath.Join("testdata", "dashboard_config.json"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dashboard_config.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	st := store.NewMemoryStore()
	require.NoError(t, SeedBuiltinPolicies(ctx, st))
	src := stats.NewStoreSource(st, logger)
	bus := events.New()

	reg := command.NewRegistry(logger)
	require.NoError(t, handlers.RegisterDefaults(reg, handlers.Deps{
		Fetcher:      stats.NewMuxFetcher(src, nil),
		FetchTimeout: time.Second,
		Logger:       logger,
	}))
	reg.Use(command.ValidationMiddleware{})
	reg.Use(command.NewLoggingMiddleware(logger))
	command.PublishTo(reg, bus)

	cs := configstore.New(configstore.NewFileBackend(path, logger),
		configstore.WithLogger(logger),
		configstore.WithModuleValidator(handlers.ModuleValidator(reg)))

	base := []Option{
		WithStore(st),
		WithConfigStore(cs),
		WithRegistry(reg),
		WithStatsSource(src),
		WithEventBus(bus),
		WithLogger(logger),
		WithRefreshSchedule(""),
	}
	srv, err := New(append(base, opts...)...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, ts: ts, st: st, cs: cs, reg: reg, src: src, bus: bus, path: path, logger: logger}
}

type response struct {
	code   int
	header http.Header
	body   map[string]any
}

func (f *fixture) do(t *testing.T, req *http.Request, token string) response {
	t.Helper()
	if token != "" {
		req.Header.Set(AuthorizationHeader, APIKeyPrefix+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{code: resp.StatusCode, header: resp.Header}
	if resp.StatusCode != http.StatusNotModified {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out.body))
	}
	return out
}

func (f *fixture) get(t *testing.T, token, query string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.ts.URL+DashboardPath+"?"+query, nil)
	require.NoError(t, err)
	return f.do(t, req, token)
}

func (f *fixture) post(t *testing.T, token string, form url.Values) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+DashboardPath, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(t, req, token)
}

// issue creates a user attached to policies and returns a bearer secret.
func (f *fixture) issue(t *testing.T, name string, policies ...string) string {
	t.Helper()
	ctx := context.Background()
	u := &types.User{Name: name, Role: "operator", Policies: policies}
	require.NoError(t, repos.NewUserRepo(f.st).Create(ctx, u))
	_, secret, err := repos.NewTokenRepo(f.st).Issue(ctx, name, u.ID, "", 0)
	require.NoError(t, err)
	return secret
}

func items(t *testing.T, r response) []map[string]any {
	t.Helper()
	raw, ok := r.body["data"].([]any)
	require.True(t, ok, "data is not a list: %v", r.body)
	out := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		out = append(out, it.(map[string]any))
	}
	return out
}

// itemID returns the id of a rendered result or of a substituted raw item.
func itemID(it map[string]any) string {
	if data, ok := it["data"].(map[string]any); ok {
		return data["id"].(string)
	}
	return it["id"].(string)
}

func TestGetConfigAndETag(t *testing.T) {
	f := newFixture(t)

	r := f.get(t, "", "action=get_config")
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, true, r.body["success"])
	assert.NotEmpty(t, r.body["timestamp"])
	data := r.body["data"].(map[string]any)
	assert.Equal(t, "1.0", data["version"])

	tag := r.header.Get("ETag")
	require.NotEmpty(t, tag)

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+DashboardPath+"?action=get_config", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, f.do(t, req, "").code)
}

func TestListReadsApplyItemErrorPolicies(t *testing.T) {
	f := newFixture(t)

	nav := items(t, f.get(t, "", "action=get_navigation"))
	require.Len(t, nav, 2)
	assert.Equal(t, types.CommandNavigationItem, nav[0]["type"])
	assert.Equal(t, "dashboard", itemID(nav[0]))
	// inbox has no url: the handler rejects it and the raw item is kept.
	assert.Equal(t, "inbox", itemID(nav[1]))
	assert.Nil(t, nav[1]["type"])

	mods := items(t, f.get(t, "", "action=get_dashboard_modules"))
	assert.Equal(t, []string{"intel", "personnel"}, []string{itemID(mods[0]), itemID(mods[1])})
	for _, m := range mods {
		assert.Equal(t, types.CommandDashboardModule, m["type"])
		assert.NotEmpty(t, m["html"])
	}
	assert.True(t, f.logger.HasMessage(log.WarnLevel, "Item failed to render"))

	f = newFixture(t, WithItemErrorPolicies(ItemErrorPolicies{
		Navigation:       ItemErrorDrop,
		DashboardModules: ItemErrorSubstitute,
		OverviewStats:    ItemErrorSubstitute,
	}))
	nav = items(t, f.get(t, "", "action=get_navigation"))
	require.Len(t, nav, 1)
	mods = items(t, f.get(t, "", "action=get_dashboard_modules"))
	assert.Equal(t, []string{"draft", "intel", "personnel"}, []string{itemID(mods[0]), itemID(mods[1]), itemID(mods[2])})
}

func TestGetOverviewStatsUsesSource(t *testing.T) {
	f := newFixture(t)
	_, err := f.src.Set(context.Background(), types.StatCategoryAlerts, map[string]any{"open": 7})
	require.NoError(t, err)

	stats := items(t, f.get(t, "", "action=get_overview_stats"))
	require.Len(t, stats, 2)
	alerts := stats[0]["data"].(map[string]any)
	assert.Equal(t, "alerts", alerts["id"])
	assert.EqualValues(t, 7, alerts["value"])
	assert.Equal(t, "api", alerts["valueSource"])

	onDuty := stats[1]["data"].(map[string]any)
	assert.EqualValues(t, 85, onDuty["value"])
	assert.Equal(t, "fallback", onDuty["valueSource"])
}

func TestSimpleReads(t *testing.T) {
	f := newFixture(t)

	r := f.get(t, "", "action=get_settings")
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, true, r.body["data"].(map[string]any)["autoRefresh"])

	r = f.get(t, "", "action=get_registered_handlers")
	assert.Equal(t, []any{"api_endpoint", "dashboard_module", "navigation_item", "stat_widget"}, r.body["data"])

	_, err := f.src.Set(context.Background(), types.StatCategoryMission, map[string]any{"active": 2})
	require.NoError(t, err)
	r = f.get(t, "", "action=get_stats_data&type=mission")
	require.Equal(t, http.StatusOK, r.code)
	assert.EqualValues(t, 2, r.body["data"].(map[string]any)["active"])

	r = f.get(t, "", "action=get_stats_data")
	require.Equal(t, http.StatusOK, r.code)
	assert.Contains(t, r.body["data"], types.StatCategoryOperations)

	r = f.get(t, "", "action=get_stats_data&type=weather")
	assert.Equal(t, http.StatusBadRequest, r.code)
	assert.Equal(t, string(types.KindValidation), r.body["error"])
}

func TestExecuteCommand(t *testing.T) {
	f := newFixture(t)

	r := f.post(t, "", url.Values{
		"action":       {"execute_command"},
		"command_type": {"dashboard_module"},
		"command_data": {`{"id":"d1","title":"T <b>","description":"D"}`},
	})
	require.Equal(t, http.StatusOK, r.code, r.body)
	assert.Equal(t, "Command executed successfully", r.body["message"])
	data := r.body["data"].(map[string]any)
	assert.Equal(t, "dashboard_module", data["type"])
	html := data["html"].(string)
	assert.Contains(t, html, "T &lt;b&gt;")
	assert.Contains(t, html, "D")
	assert.NotContains(t, html, "&amp;lt;")

	// JSON bodies carry command_data as an object.
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+DashboardPath,
		strings.NewReader(`{"action":"execute_command","command_type":"api_endpoint","command_data":{"endpoint":"/api/x"}}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	r = f.do(t, req, "")
	require.Equal(t, http.StatusOK, r.code, r.body)
	assert.Equal(t, "GET", r.body["data"].(map[string]any)["data"].(map[string]any)["method"])
}

func TestExecuteCommandErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		form  url.Values
		code  int
		kind  types.ErrorKind
		field string
	}{
		{
			name:  "missing fields",
			form:  url.Values{"action": {"execute_command"}, "command_type": {"dashboard_module"}, "command_data": {`{"title":"T"}`}},
			code:  http.StatusBadRequest,
			kind:  types.KindValidation,
			field: "id",
		},
		{
			name:  "missing command type",
			form:  url.Values{"action": {"execute_command"}, "command_data": {`{}`}},
			code:  http.StatusBadRequest,
			kind:  types.KindValidation,
			field: "command_type",
		},
		{
			name:  "command data not an object",
			form:  url.Values{"action": {"execute_command"}, "command_type": {"navigation_item"}, "command_data": {`[1,2]`}},
			code:  http.StatusBadRequest,
			kind:  types.KindValidation,
			field: "command_data",
		},
		{
			name: "unregistered type",
			form: url.Values{"action": {"execute_command"}, "command_type": {"missile"}, "command_data": {`{}`}},
			code: http.StatusBadRequest,
			kind: types.KindRegistry,
		},
		{
			name: "unknown action",
			form: url.Values{"action": {"self_destruct"}},
			code: http.StatusBadRequest,
			kind: types.KindInvalidAction,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := f.post(t, "", tt.form)
			assert.Equal(t, tt.code, r.code)
			assert.Equal(t, false, r.body["success"])
			assert.Equal(t, string(tt.kind), r.body["error"])
			assert.NotEmpty(t, r.body["message"])
			if tt.field != "" {
				assert.Equal(t, tt.field, r.body["field"])
			}
			assert.NotContains(t, r.body, "data")
		})
	}

	r := f.get(t, "", "action=execute_command")
	assert.Equal(t, http.StatusMethodNotAllowed, r.code)
	assert.Equal(t, string(types.KindMethodNotAllowed), r.body["error"])
	assert.Equal(t, http.MethodPost, r.header.Get("Allow"))
}

func TestMissingConfigIsServerError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.path))

	r := f.get(t, "", "action=get_dashboard_modules")
	assert.Equal(t, http.StatusInternalServerError, r.code)
	assert.Equal(t, string(types.KindConfig), r.body["error"])
	assert.Equal(t, "configuration is unavailable", r.body["message"])
	assert.NotContains(t, r.body["message"], filepath.Dir(f.path))
	assert.NotContains(t, r.body, "data")
	assert.True(t, f.logger.HasMessage(log.ErrorLevel, "Dashboard request failed"))
}

func TestModuleUpdates(t *testing.T) {
	f := newFixture(t)

	r := f.post(t, "", url.Values{
		"action":      {"update_module"},
		"module_id":   {"personnel"},
		"module_data": {`{"title":"Staff Records"}`},
	})
	require.Equal(t, http.StatusOK, r.code, r.body)
	assert.NotEmpty(t, r.header.Get("ETag"))

	doc, err := f.cs.Load(context.Background(), false)
	require.NoError(t, err)
	i := doc.Commands.FindModule("personnel")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "Staff Records", doc.Commands.DashboardModules[i].Title)
	assert.Equal(t, "Staff records", doc.Commands.DashboardModules[i].Description)

	r = f.post(t, "", url.Values{
		"action":      {"update_module"},
		"module_id":   {"fresh"},
		"module_data": {`{"title":"Fresh"}`},
	})
	assert.Equal(t, http.StatusBadRequest, r.code)
	assert.Equal(t, "description", r.body["field"])

	r = f.post(t, "", url.Values{"action": {"remove_module"}, "module_id": {"draft"}})
	require.Equal(t, http.StatusOK, r.code, r.body)
	doc, err = f.cs.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, -1, doc.Commands.FindModule("draft"))

	r = f.post(t, "", url.Values{"action": {"remove_module"}})
	assert.Equal(t, http.StatusBadRequest, r.code)
	assert.Equal(t, "module_id", r.body["field"])
}

func TestUpdateConfigRevisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, rev, err := f.cs.LoadWithRevision(ctx, false)
	require.NoError(t, err)
	doc.Version = "2.0"
	body, err := json.Marshal(doc)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+DashboardPath,
		strings.NewReader(url.Values{"action": {"update_config"}, "config": {string(body)}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("If-Match", `"stale"`)
	r := f.do(t, req, "")
	assert.Equal(t, http.StatusConflict, r.code)
	assert.Equal(t, string(types.KindConflict), r.body["error"])

	r = f.post(t, "", url.Values{"action": {"update_config"}, "config": {string(body)}, "revision": {rev}})
	require.Equal(t, http.StatusOK, r.code, r.body)
	newRev := r.body["data"].(map[string]any)["revision"].(string)
	assert.NotEqual(t, rev, newRev)
	assert.Equal(t, etag(newRev), r.header.Get("ETag"))

	got, err := f.cs.Load(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "2.0", got.Version)

	r = f.post(t, "", url.Values{"action": {"update_config"}, "config": {`{"commands":{}}`}})
	assert.Equal(t, http.StatusInternalServerError, r.code)
	assert.Equal(t, string(types.KindConfig), r.body["error"])
	assert.Equal(t, "configuration is missing required key: version", r.body["message"])
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, WithAuth([]string{"static-key"}))

	r := f.get(t, "", "action=get_config")
	assert.Equal(t, http.StatusUnauthorized, r.code)
	assert.Equal(t, string(types.KindUnauthorized), r.body["error"])

	r = f.get(t, "bogus", "action=get_config")
	assert.Equal(t, http.StatusUnauthorized, r.code)

	r = f.get(t, "static-key", "action=get_config")
	assert.Equal(t, http.StatusOK, r.code)

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+DashboardPath+"?action=get_settings", nil)
	require.NoError(t, err)
	req.Header.Set(APIKeyHeader, "static-key")
	assert.Equal(t, http.StatusOK, f.do(t, req, "").code)

	// Query tokens are only honoured on the event stream.
	r = f.get(t, "", "action=get_config&token=static-key")
	assert.Equal(t, http.StatusUnauthorized, r.code)
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t, WithAuth(nil))
	reader := f.issue(t, "reader", "readonly")
	writer := f.issue(t, "writer", "readwrite")
	nobody := f.issue(t, "nobody")

	exec := url.Values{
		"action":       {"execute_command"},
		"command_type": {"navigation_item"},
		"command_data": {`{"id":"n","title":"N","url":"/n"}`},
	}

	assert.Equal(t, http.StatusOK, f.get(t, reader, "action=get_navigation").code)
	r := f.post(t, reader, exec)
	assert.Equal(t, http.StatusForbidden, r.code)
	assert.Equal(t, string(types.KindForbidden), r.body["error"])
	assert.Equal(t, http.StatusOK, f.post(t, writer, exec).code)

	assert.Equal(t, http.StatusForbidden, f.get(t, nobody, "action=get_config").code)
	assert.Equal(t, http.StatusForbidden, f.get(t, writer, "action=get_audit_log").code)
}

func TestModulePermissionsComeFromPolicies(t *testing.T) {
	f := newFixture(t, WithAuth(nil))
	ctx := context.Background()
	pr := repos.NewPolicyRepo(f.st)
	require.NoError(t, pr.Create(ctx, &types.Policy{Name: "intel", Permissions: []string{"intel.read"}}))
	require.NoError(t, pr.Create(ctx, &types.Policy{Name: "hr", Permissions: []string{"personnel.read"}}))

	analyst := f.issue(t, "analyst", "readonly", "intel")
	clerk := f.issue(t, "clerk", "readonly", "hr")
	plain := f.issue(t, "plain", "readonly")

	ids := func(token string) []string {
		var out []string
		for _, it := range items(t, f.get(t, token, "action=get_dashboard_modules")) {
			out = append(out, itemID(it))
		}
		return out
	}
	assert.Equal(t, []string{"intel", "personnel"}, ids(analyst))
	assert.Equal(t, []string{"personnel"}, ids(clerk))
	// Callers without permissions see restricted modules under fail-open.
	assert.Equal(t, []string{"intel", "personnel"}, ids(plain))
}

func TestAuditLogAction(t *testing.T) {
	l, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"), log.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	f := newFixture(t, WithAuditLog(l))
	l.Attach(f.reg)

	f.post(t, "", url.Values{
		"action":       {"execute_command"},
		"command_type": {"api_endpoint"},
		"command_data": {`{"endpoint":"/x"}`},
	})
	r := f.get(t, "", "action=get_audit_log&limit=5")
	require.Equal(t, http.StatusOK, r.code)
	entries := r.body["data"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "api_endpoint", entry["type"])
	assert.Equal(t, "ok", entry["status"])
	assert.Equal(t, "execute_command", entry["action"])
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, WithAuth([]string{"static-key"}))
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + EventsPath

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=static-key", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.bus.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	r := f.post(t, "static-key", url.Values{"action": {"remove_module"}, "module_id": {"draft"}})
	require.Equal(t, http.StatusOK, r.code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.SourceConfig, ev.Source)
	assert.Equal(t, events.KindConfigChanged, ev.Kind)
	assert.Equal(t, r.body["data"].(map[string]any)["revision"], ev.Data["revision"])
}

func TestRefreshJobPublishes(t *testing.T) {
	f := newFixture(t)
	ch := f.bus.Subscribe(8)
	defer f.bus.Unsubscribe(ch)

	require.NoError(t, f.srv.refreshConfig(context.Background()))
	ev := <-ch
	assert.Equal(t, events.KindRefreshComplete, ev.Kind)
	assert.NotEmpty(t, ev.Data["revision"])

	require.NoError(t, os.WriteFile(f.path, []byte(`{"commands":{}}`), 0o644))
	require.Error(t, f.srv.refreshConfig(context.Background()))
	ev = <-ch
	assert.Equal(t, events.KindConfigInvalid, ev.Kind)
	assert.NotEmpty(t, ev.Data["error"])
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, WithHTTPAddr("127.0.0.1:0"), WithRefreshSchedule("@every 1h"))
	ctx := context.Background()
	require.NoError(t, f.srv.Start(ctx))

	resp, err := http.Get("http://" + f.srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + f.srv.Addr() + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + f.srv.Addr() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	jobs := f.srv.scheduler.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, refreshJobName, jobs[0].Name)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Stop(stopCtx))
	require.NoError(t, f.srv.Stop(stopCtx))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New()
	assert.Error(t, err)

	cs := configstore.New(configstore.NewFileBackend(filepath.Join(t.TempDir(), "x.json"), nil))
	_, err = New(WithConfigStore(cs))
	assert.Error(t, err)

	_, err = New(WithConfigStore(cs), WithRegistry(command.NewRegistry(nil)), WithAuth(nil))
	assert.Error(t, err)
}

func TestStopDrainsStreamsAndRefusesNewOnes(t *testing.T) {
	f := newFixture(t)
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + EventsPath

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.bus.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Stop(stopCtx))
	assert.Equal(t, 0, f.bus.SubscriberCount())

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 0, f.bus.SubscriberCount())
}
