package handlers

import (
	"time"

	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/stats"
	"github.com/armis/armis/pkg/types"
)

// Deps are the collaborators of the built-in handlers.
type Deps struct {
	Policy       types.PermissionPolicy
	Fetcher      stats.Fetcher
	FetchTimeout time.Duration
	Logger       log.Logger
}

// RegisterDefaults binds the four built-in command types on reg.
func RegisterDefaults(reg *command.Registry, deps Deps) error {
	if deps.Policy == "" {
		deps.Policy = types.PermissionFailOpen
	}
	if deps.Logger == nil {
		deps.Logger = log.GetDefaultLogger()
	}
	logger := deps.Logger.WithComponent("handlers")

	bindings := []struct {
		cmdType string
		factory command.Factory
	}{
		{types.CommandDashboardModule, func() command.Handler {
			return &DashboardModuleHandler{Policy: deps.Policy}
		}},
		{types.CommandNavigationItem, func() command.Handler { return NavigationItemHandler{} }},
		{types.CommandStatWidget, func() command.Handler {
			return &StatWidgetHandler{Fetcher: deps.Fetcher, Timeout: deps.FetchTimeout, Logger: logger}
		}},
		{types.CommandAPIEndpoint, func() command.Handler { return APIEndpointHandler{} }},
	}
	for _, b := range bindings {
		if err := reg.RegisterHandler(b.cmdType, b.factory); err != nil {
			return err
		}
	}
	return nil
}

// ModuleValidator runs the registered dashboard_module validation on a
// merged module payload, for use with configstore.WithModuleValidator.
func ModuleValidator(reg *command.Registry) func(payload map[string]any) error {
	return func(payload map[string]any) error {
		h, err := reg.Handler(types.CommandDashboardModule)
		if err != nil {
			return err
		}
		return h.Validate(payload)
	}
}
