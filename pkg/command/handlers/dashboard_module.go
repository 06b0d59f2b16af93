package handlers

import (
	"context"
	"html/template"
	"strings"

	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/types"
)

var moduleTmpl = template.Must(template.New("dashboard_module").Parse(
	`<div class="col-md-4 mb-4" data-module-id="{{.ID}}">` +
		`<div class="card h-100 dashboard-module"><div class="card-body text-center">` +
		`<i class="fas {{.Icon}} fa-3x mb-3 {{.IconColor}}"></i>` +
		`<h5 class="card-title">{{.Title}}</h5>` +
		`<p class="card-text">{{.Description}}</p>` +
		`{{if .URL}}<a href="{{.URL}}" class="btn {{.ButtonClass}}">{{.ButtonText}}</a>{{end}}` +
		`</div></div></div>`))

type dashboardModuleRequest struct {
	ID          string   `mapstructure:"id" validate:"notblank"`
	Title       string   `mapstructure:"title" validate:"notblank"`
	Description string   `mapstructure:"description" validate:"notblank"`
	URL         *string  `mapstructure:"url" validate:"omitnil,notblank"`
	Icon        string   `mapstructure:"icon"`
	IconColor   string   `mapstructure:"iconColor"`
	ButtonClass string   `mapstructure:"buttonClass"`
	ButtonText  string   `mapstructure:"buttonText"`
	Permissions []string `mapstructure:"permissions"`
}

type moduleView struct {
	ID, Title, Description, Icon, IconColor, URL, ButtonClass, ButtonText string
}

// DashboardModuleHandler renders a dashboard card after checking the
// caller against the module's permissions.
type DashboardModuleHandler struct {
	Policy types.PermissionPolicy
}

func (h *DashboardModuleHandler) Validate(payload map[string]any) error {
	return decodePayload(payload, &dashboardModuleRequest{})
}

func (h *DashboardModuleHandler) RequiredPermissions(payload map[string]any) []string {
	return permissionsOf(payload)
}

func (h *DashboardModuleHandler) Execute(ctx context.Context, payload map[string]any, cctx *types.CommandContext) (*command.Result, error) {
	var req dashboardModuleRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	var caller []string
	if cctx != nil {
		caller = cctx.Permissions
	}
	if !h.Policy.Allows(h.RequiredPermissions(payload), caller) {
		return nil, types.NewPermissionError("insufficient permissions for module %s", plain(req.ID))
	}

	view := moduleView{
		ID:          plain(req.ID),
		Title:       plain(req.Title),
		Description: plain(req.Description),
		Icon:        plain(req.Icon),
		IconColor:   plain(req.IconColor),
		ButtonClass: plain(req.ButtonClass),
		ButtonText:  plain(req.ButtonText),
	}
	if req.URL != nil {
		view.URL = plain(*req.URL)
	}
	if view.ButtonClass == "" {
		view.ButtonClass = "btn-primary"
	}
	if view.ButtonText == "" {
		view.ButtonText = "Open"
	}

	var sb strings.Builder
	if err := moduleTmpl.Execute(&sb, view); err != nil {
		return nil, err
	}
	return &command.Result{Type: types.CommandDashboardModule, Data: copyPayload(payload), HTML: sb.String()}, nil
}
