package handlers

import (
	"context"

	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/types"
)

type navigationItemRequest struct {
	ID    string `mapstructure:"id" validate:"notblank"`
	Title string `mapstructure:"title" validate:"notblank"`
	URL   string `mapstructure:"url" validate:"notblank"`
}

// NavigationItemHandler passes a validated navigation entry through.
type NavigationItemHandler struct{}

func (NavigationItemHandler) Validate(payload map[string]any) error {
	return decodePayload(payload, &navigationItemRequest{})
}

func (NavigationItemHandler) RequiredPermissions(payload map[string]any) []string {
	return permissionsOf(payload)
}

func (NavigationItemHandler) Execute(ctx context.Context, payload map[string]any, cctx *types.CommandContext) (*command.Result, error) {
	data := copyPayload(payload)
	data["type"] = types.CommandNavigationItem
	return &command.Result{Type: types.CommandNavigationItem, Data: data}, nil
}
