package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/types"
)

type apiEndpointRequest struct {
	Endpoint string `mapstructure:"endpoint" validate:"notblank"`
	Method   string `mapstructure:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE get post put patch delete"`
}

// APIEndpointHandler returns an endpoint registration record. It performs
// no network I/O.
type APIEndpointHandler struct{}

func (APIEndpointHandler) Validate(payload map[string]any) error {
	return decodePayload(payload, &apiEndpointRequest{})
}

func (APIEndpointHandler) RequiredPermissions(payload map[string]any) []string {
	return permissionsOf(payload)
}

func (APIEndpointHandler) Execute(ctx context.Context, payload map[string]any, cctx *types.CommandContext) (*command.Result, error) {
	var req apiEndpointRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	return &command.Result{
		Type: types.CommandAPIEndpoint,
		Data: map[string]any{
			"endpoint": plain(req.Endpoint),
			"method":   method,
			"payload":  copyPayload(payload),
		},
	}, nil
}
