package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/stats"
	"github.com/armis/armis/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, deps Deps) *command.Registry {
	t.Helper()
	reg := command.NewRegistry(log.NewTestLogger())
	if deps.Logger == nil {
		deps.Logger = log.NewTestLogger()
	}
	require.NoError(t, RegisterDefaults(reg, deps))
	reg.Use(command.ValidationMiddleware{})
	reg.Use(command.NewLoggingMiddleware(log.NewTestLogger()))
	return reg
}

func fieldOf(err error) string {
	var e *types.Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

func TestRegisterDefaults(t *testing.T) {
	reg := newRegistry(t, Deps{})
	assert.Equal(t, []string{"api_endpoint", "dashboard_module", "navigation_item", "stat_widget"}, reg.Types())
}

func TestModuleValidator(t *testing.T) {
	validate := ModuleValidator(newRegistry(t, Deps{}))
	assert.NoError(t, validate(map[string]any{"id": "m", "title": "T", "description": "D"}))

	err := validate(map[string]any{"id": "m", "title": "T"})
	require.True(t, types.IsValidationError(err))
	assert.Equal(t, "description", fieldOf(err))

	empty := command.NewRegistry(log.NewTestLogger())
	assert.ErrorIs(t, ModuleValidator(empty)(map[string]any{}), types.ErrRegistry)
}

func TestDashboardModuleWithoutURL(t *testing.T) {
	reg := newRegistry(t, Deps{})
	res, err := reg.Execute(context.Background(), types.CommandDashboardModule,
		map[string]any{"id": "d1", "title": "T", "description": "D"}, &types.CommandContext{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, types.CommandDashboardModule, res.Type)
	assert.Contains(t, res.HTML, `<h5 class="card-title">T</h5>`)
	assert.Contains(t, res.HTML, `<p class="card-text">D</p>`)
	assert.NotContains(t, res.HTML, "<a ")
}

func TestDashboardModuleValidation(t *testing.T) {
	reg := newRegistry(t, Deps{})
	tests := []struct {
		name    string
		payload map[string]any
		field   string
	}{
		{"names first missing field", map[string]any{"title": "T"}, "id"},
		{"description required", map[string]any{"id": "d1", "title": "T"}, "description"},
		{"blank title", map[string]any{"id": "d1", "title": "  ", "description": "D"}, "title"},
		{"empty url", map[string]any{"id": "d1", "title": "T", "description": "D", "url": ""}, "url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Execute(context.Background(), types.CommandDashboardModule, tt.payload, nil)
			require.Error(t, err)
			assert.True(t, types.IsValidationError(err), "got %v", err)
			assert.Equal(t, tt.field, fieldOf(err))
		})
	}
}

func TestDashboardModulePermissions(t *testing.T) {
	payload := map[string]any{"id": "d1", "title": "T", "description": "D", "permissions": []any{"p1"}}
	tests := []struct {
		name    string
		policy  types.PermissionPolicy
		caller  []string
		allowed bool
	}{
		{"fail-open empty caller", types.PermissionFailOpen, nil, true},
		{"disjoint caller", types.PermissionFailOpen, []string{"p2"}, false},
		{"matching caller", types.PermissionFailOpen, []string{"p2", "p1"}, true},
		{"fail-closed empty caller", types.PermissionFailClosed, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newRegistry(t, Deps{Policy: tt.policy})
			_, err := reg.Execute(context.Background(), types.CommandDashboardModule, payload, &types.CommandContext{Permissions: tt.caller})
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, types.ErrPermission)
			}
		})
	}
}

func TestRenderingEscapesExactlyOnce(t *testing.T) {
	payload := map[string]any{
		"id":          "d1",
		"title":       "<script>alert(1)</script>",
		"description": `Tom & "Jerry"`,
		"url":         "/staff?a=1&b=2",
		"buttonText":  "<b>Go</b>",
	}

	withMiddleware := newRegistry(t, Deps{})
	res, err := withMiddleware.Execute(context.Background(), types.CommandDashboardModule, payload, nil)
	require.NoError(t, err)

	bare := command.NewRegistry(log.NewTestLogger())
	require.NoError(t, RegisterDefaults(bare, Deps{Logger: log.NewTestLogger()}))
	direct, err := bare.Execute(context.Background(), types.CommandDashboardModule, payload, nil)
	require.NoError(t, err)

	assert.Equal(t, direct.HTML, res.HTML)
	for _, html := range []string{res.HTML, direct.HTML} {
		assert.Contains(t, html, "&lt;script&gt;alert(1)&lt;/script&gt;")
		assert.NotContains(t, html, "<script>")
		assert.NotContains(t, html, "&amp;lt;")
		assert.Contains(t, html, "Tom &amp; &#34;Jerry&#34;")
		assert.Contains(t, html, `href="/staff?a=1&amp;b=2"`)
		assert.Contains(t, html, "&lt;b&gt;Go&lt;/b&gt;")
	}
}

func TestDashboardModuleRejectsScriptURL(t *testing.T) {
	h := &DashboardModuleHandler{Policy: types.PermissionFailOpen}
	res, err := h.Execute(context.Background(), map[string]any{
		"id": "d1", "title": "T", "description": "D", "url": "javascript:alert(1)",
	}, nil)
	require.NoError(t, err)
	assert.NotContains(t, res.HTML, "javascript:")
	assert.Contains(t, res.HTML, "#ZgotmplZ")
}

func TestNavigationItem(t *testing.T) {
	reg := newRegistry(t, Deps{})

	res, err := reg.Execute(context.Background(), types.CommandNavigationItem,
		map[string]any{"id": "staff", "title": "Staff", "url": "/staff", "order": 2.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.CommandNavigationItem, res.Type)
	assert.Equal(t, types.CommandNavigationItem, res.Data["type"])
	assert.Equal(t, "/staff", res.Data["url"])

	_, err = reg.Execute(context.Background(), types.CommandNavigationItem,
		map[string]any{"id": "staff", "title": "Staff"}, nil)
	assert.Equal(t, "url", fieldOf(err))
}

func TestStatWidget(t *testing.T) {
	ctx := context.Background()
	failing := stats.FetcherFunc(func(ctx context.Context, endpoint string) (any, error) {
		return nil, errors.New("backend down")
	})
	slow := stats.FetcherFunc(func(ctx context.Context, endpoint string) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return 1, nil
		}
	})
	var gotEndpoint string
	working := stats.FetcherFunc(func(ctx context.Context, endpoint string) (any, error) {
		gotEndpoint = endpoint
		return 1247.0, nil
	})

	base := map[string]any{"id": "on_duty", "title": "On Duty", "icon": "fa-user", "color": "success", "fallbackValue": 85.0}
	api := copyPayload(base)
	api["dataSource"] = "api"
	api["endpoint"] = "https://metrics.local/duty?unit=a&shift=b"

	tests := []struct {
		name    string
		fetcher stats.Fetcher
		payload map[string]any
		value   any
		source  string
		shown   string
	}{
		{"static uses fallback", working, base, 85.0, "fallback", ">85<"},
		{"api success", working, api, 1247.0, "api", ">1247<"},
		{"api error falls back", failing, api, 85.0, "fallback", ">85<"},
		{"api timeout falls back", slow, api, 85.0, "fallback", ">85<"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newRegistry(t, Deps{Fetcher: tt.fetcher, FetchTimeout: 20 * time.Millisecond})
			res, err := reg.Execute(ctx, types.CommandStatWidget, tt.payload, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.value, res.Data["value"])
			assert.Equal(t, tt.source, res.Data["valueSource"])
			assert.Contains(t, res.HTML, tt.shown)
			assert.Contains(t, res.HTML, "border-left-success")
		})
	}
	assert.Equal(t, "https://metrics.local/duty?unit=a&shift=b", gotEndpoint, "endpoint must be unescaped before fetching")

	reg := newRegistry(t, Deps{})
	_, err := reg.Execute(ctx, types.CommandStatWidget, map[string]any{"id": "x", "title": "X"}, nil)
	assert.Equal(t, "icon", fieldOf(err))

	bad := copyPayload(base)
	bad["dataSource"] = "socket"
	_, err = reg.Execute(ctx, types.CommandStatWidget, bad, nil)
	assert.Equal(t, "dataSource", fieldOf(err))
}

func TestStatWidgetForeignEndpointFallsBack(t *testing.T) {
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value": "internal-secret"}`))
	}))
	defer internal.Close()

	fetcher := stats.NewMuxFetcher(nil, stats.NewHTTPFetcher("https://stats.example.invalid/", time.Second))
	reg := newRegistry(t, Deps{Fetcher: fetcher, FetchTimeout: time.Second})
	payload := map[string]any{
		"id": "leak", "title": "Leak", "icon": "fa-bug",
		"dataSource": "api", "endpoint": internal.URL + "/admin", "fallbackValue": 0.0,
	}
	res, err := reg.Execute(context.Background(), types.CommandStatWidget, payload, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Data["value"])
	assert.Equal(t, "fallback", res.Data["valueSource"])
	assert.NotContains(t, res.HTML, "internal-secret")
}

func TestAPIEndpoint(t *testing.T) {
	reg := newRegistry(t, Deps{})
	ctx := context.Background()

	res, err := reg.Execute(ctx, types.CommandAPIEndpoint, map[string]any{"endpoint": "/api/v1/units"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "GET", res.Data["method"])
	assert.Equal(t, "/api/v1/units", res.Data["endpoint"])

	res, err = reg.Execute(ctx, types.CommandAPIEndpoint, map[string]any{"endpoint": "/api/v1/units", "method": "post"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "POST", res.Data["method"])

	_, err = reg.Execute(ctx, types.CommandAPIEndpoint, map[string]any{"method": "GET"}, nil)
	assert.Equal(t, "endpoint", fieldOf(err))

	_, err = reg.Execute(ctx, types.CommandAPIEndpoint, map[string]any{"endpoint": "/x", "method": "TRACE"}, nil)
	assert.Equal(t, "method", fieldOf(err))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "85", formatValue(85.0))
	assert.Equal(t, "2.50", formatValue(2.5))
	assert.Equal(t, "-", formatValue(nil))
	assert.Equal(t, "a&b", formatValue("a&amp;b"))
	assert.Equal(t, "7", formatValue(7))
}
