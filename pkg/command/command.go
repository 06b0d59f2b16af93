// Package command implements the typed command registry: handlers bound to
// a type string, a middleware chain applied to every payload, and
// synchronous observers of registration and dispatch.
package command

import (
	"context"
	"time"

	"github.com/armis/armis/pkg/types"
)

// Handler processes one command type.
type Handler interface {
	// Validate checks the payload and names the first missing field.
	Validate(payload map[string]any) error

	// Execute produces the render-ready result.
	Execute(ctx context.Context, payload map[string]any, cctx *types.CommandContext) (*Result, error)

	// RequiredPermissions returns the capabilities the payload demands.
	RequiredPermissions(payload map[string]any) []string
}

// Factory builds a handler for each dispatch.
type Factory func() Handler

// Result is the outcome of a command: structured data plus an optional
// markup fragment.
type Result struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	HTML string         `json:"html,omitempty"`
}

// Middleware transforms or observes a payload before dispatch. It may
// return a new payload; it must not modify the one it was given.
type Middleware interface {
	Process(ctx context.Context, cmdType string, payload map[string]any, cctx *types.CommandContext) (map[string]any, error)
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, cmdType string, payload map[string]any, cctx *types.CommandContext) (map[string]any, error)

func (f MiddlewareFunc) Process(ctx context.Context, cmdType string, payload map[string]any, cctx *types.CommandContext) (map[string]any, error) {
	return f(ctx, cmdType, payload, cctx)
}

// Registry events.
const (
	EventHandlerRegistered = "handler_registered"
	EventCommandExecuting  = "command_executing"
	EventCommandExecuted   = "command_executed"
	EventCommandFailed     = "command_failed"
)

// Event is delivered to listeners. Fields not relevant to Name are zero.
type Event struct {
	Name     string
	Type     string
	Payload  map[string]any
	Result   *Result
	Err      error
	Context  *types.CommandContext
	Duration time.Duration
	Time     time.Time
}

// Listener observes registry events. Returned errors are logged.
type Listener func(ctx context.Context, ev Event) error
