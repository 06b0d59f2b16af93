package handlers

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/stats"
	"github.com/armis/armis/pkg/types"
)

var statTmpl = template.Must(template.New("stat_widget").Parse(
	`<div class="col-xl-3 col-md-6 mb-4" data-stat-id="{{.ID}}">` +
		`<div class="card stat-card border-left-{{.Color}} h-100"><div class="card-body">` +
		`<div class="text-xs font-weight-bold text-{{.Color}} text-uppercase mb-1">{{.Title}}</div>` +
		`<div class="h5 mb-0 font-weight-bold">{{.Value}}</div>` +
		`<i class="fas {{.Icon}} fa-2x text-gray-300"></i>` +
		`</div></div></div>`))

type statWidgetRequest struct {
	ID            string `mapstructure:"id" validate:"notblank"`
	Title         string `mapstructure:"title" validate:"notblank"`
	Icon          string `mapstructure:"icon" validate:"notblank"`
	Color         string `mapstructure:"color"`
	DataSource    string `mapstructure:"dataSource" validate:"omitempty,oneof=static api"`
	Endpoint      string `mapstructure:"endpoint"`
	FallbackValue any    `mapstructure:"fallbackValue"`
}

type statView struct {
	ID, Title, Icon, Color, Value string
}

// StatWidgetHandler resolves a stat value and renders its card. API-backed
// widgets fall back to fallbackValue when the fetch fails or times out.
type StatWidgetHandler struct {
	Fetcher stats.Fetcher
	Timeout time.Duration
	Logger  log.Logger
}

func (h *StatWidgetHandler) Validate(payload map[string]any) error {
	return decodePayload(payload, &statWidgetRequest{})
}

func (h *StatWidgetHandler) RequiredPermissions(payload map[string]any) []string {
	return permissionsOf(payload)
}

func (h *StatWidgetHandler) Execute(ctx context.Context, payload map[string]any, cctx *types.CommandContext) (*command.Result, error) {
	var req statWidgetRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}

	value, source := h.resolve(ctx, &req)
	color := plain(req.Color)
	if color == "" {
		color = "primary"
	}
	view := statView{
		ID:    plain(req.ID),
		Title: plain(req.Title),
		Icon:  plain(req.Icon),
		Color: color,
		Value: formatValue(value),
	}
	var sb strings.Builder
	if err := statTmpl.Execute(&sb, view); err != nil {
		return nil, err
	}

	data := copyPayload(payload)
	data["value"] = value
	data["valueSource"] = source
	return &command.Result{Type: types.CommandStatWidget, Data: data, HTML: sb.String()}, nil
}

func (h *StatWidgetHandler) resolve(ctx context.Context, req *statWidgetRequest) (any, string) {
	if req.DataSource != types.DataSourceAPI || strings.TrimSpace(req.Endpoint) == "" || h.Fetcher == nil {
		return req.FallbackValue, "fallback"
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = stats.DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := plain(req.Endpoint)
	v, err := h.Fetcher.Fetch(ctx, endpoint)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("Stat fetch failed, using fallback value",
				log.Str("stat", req.ID),
				log.Str("endpoint", endpoint),
				log.Err(err))
		}
		return req.FallbackValue, "fallback"
	}
	return v, "api"
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return plain(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%.2f", t)
	default:
		return fmt.Sprint(t)
	}
}
