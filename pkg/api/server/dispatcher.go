package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/armis/armis/pkg/audit"
	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/configstore"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
)

// Dashboard actions.
const (
	ActionGetConfig             = "get_config"
	ActionGetNavigation         = "get_navigation"
	ActionGetDashboardModules   = "get_dashboard_modules"
	ActionGetOverviewStats      = "get_overview_stats"
	ActionGetSettings           = "get_settings"
	ActionGetRegisteredHandlers = "get_registered_handlers"
	ActionGetStatsData          = "get_stats_data"
	ActionExecuteCommand        = "execute_command"
	ActionUpdateModule          = "update_module"
	ActionRemoveModule          = "remove_module"
	ActionUpdateConfig          = "update_config"
	ActionGetAuditLog           = "get_audit_log"
)

type actionRequest struct {
	w      http.ResponseWriter
	r      *http.Request
	params *params
	caller *Caller
	cctx   *types.CommandContext

	// notModified answers 304 instead of an envelope.
	notModified bool
}

type actionFunc func(ctx context.Context, req *actionRequest) (data any, message string, err error)

type action struct {
	// method restricts the action to one HTTP method when set.
	method string
	verb   string
	run    actionFunc
}

func (s *APIServer) actionTable() map[string]action {
	return map[string]action{
		ActionGetConfig:             {verb: "get", run: s.getConfig},
		ActionGetNavigation:         {verb: "list", run: s.getNavigation},
		ActionGetDashboardModules:   {verb: "list", run: s.getDashboardModules},
		ActionGetOverviewStats:      {verb: "list", run: s.getOverviewStats},
		ActionGetSettings:           {verb: "get", run: s.getSettings},
		ActionGetRegisteredHandlers: {verb: "list", run: s.getRegisteredHandlers},
		ActionGetStatsData:          {verb: "get", run: s.getStatsData},
		ActionExecuteCommand:        {method: http.MethodPost, verb: "execute", run: s.executeCommand},
		ActionUpdateModule:          {method: http.MethodPost, verb: "update", run: s.updateModule},
		ActionRemoveModule:          {method: http.MethodPost, verb: "delete", run: s.removeModule},
		ActionUpdateConfig:          {method: http.MethodPost, verb: "update", run: s.updateConfig},
		ActionGetAuditLog:           {verb: "audit", run: s.getAuditLog},
	}
}

// handleDashboard authenticates, routes the action and writes the envelope.
func (s *APIServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	name, code := "", http.StatusOK
	defer func() { apiRequests.WithLabelValues(actionLabel(name), strconv.Itoa(code)).Inc() }()

	fail := func(err error) {
		code = statusFor(err)
		logger := s.logger.WithContext(r.Context())
		if code >= http.StatusInternalServerError {
			logger.Error("Dashboard request failed", log.Str("action", name), log.Err(err))
		} else {
			logger.Warn("Dashboard request rejected", log.Str("action", name), log.Err(err))
		}
		writeError(w, err)
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, POST")
		fail(types.NewMethodNotAllowedError(r.URL.Query().Get("action"), r.Method))
		return
	}

	caller, err := s.authenticate(r, false)
	if err != nil {
		fail(err)
		return
	}
	r = r.WithContext(log.ContextWithUserID(r.Context(), caller.SubjectID))

	p, err := parseParams(w, r)
	if err != nil {
		fail(err)
		return
	}
	name = p.str("action")
	act, ok := s.actions[name]
	if !ok {
		fail(types.NewInvalidActionError(name))
		return
	}
	if act.method != "" && r.Method != act.method {
		w.Header().Set("Allow", act.method)
		fail(types.NewMethodNotAllowedError(name, r.Method))
		return
	}
	if !s.evaluatePolicies(caller, ResourceDashboard, act.verb) {
		fail(types.NewForbiddenError("access denied for resource: %s verb: %s", ResourceDashboard, act.verb))
		return
	}

	req := &actionRequest{
		w:      w,
		r:      r,
		params: p,
		caller: caller,
		cctx: &types.CommandContext{
			UserID:      caller.SubjectID,
			Role:        caller.Role,
			Permissions: append([]string(nil), caller.Permissions...),
			RequestID:   log.RequestIDFromContext(r.Context()),
			RemoteAddr:  r.RemoteAddr,
			Method:      r.Method,
			Action:      name,
			Timestamp:   time.Now().UTC(),
		},
	}
	data, msg, err := act.run(r.Context(), req)
	if err != nil {
		fail(err)
		return
	}
	if req.notModified {
		code = http.StatusNotModified
		w.WriteHeader(code)
		return
	}
	writeSuccess(w, data, msg)
}

// actionLabel bounds the metric label set to known actions.
func actionLabel(name string) string {
	switch name {
	case ActionGetConfig, ActionGetNavigation, ActionGetDashboardModules, ActionGetOverviewStats,
		ActionGetSettings, ActionGetRegisteredHandlers, ActionGetStatsData, ActionExecuteCommand,
		ActionUpdateModule, ActionRemoveModule, ActionUpdateConfig, ActionGetAuditLog:
		return name
	case "":
		return "none"
	default:
		return "unknown"
	}
}

func (s *APIServer) getConfig(ctx context.Context, req *actionRequest) (any, string, error) {
	doc, rev, err := s.config.LoadWithRevision(ctx, true)
	if err != nil {
		return nil, "", err
	}
	req.w.Header().Set("ETag", etag(rev))
	if inm := req.r.Header.Get("If-None-Match"); inm != "" && revisionFromETag(inm) == rev {
		req.notModified = true
		return nil, "", nil
	}
	return doc, "", nil
}

func (s *APIServer) listOptions(req *actionRequest) configstore.ListOptions {
	return configstore.ListOptions{
		IncludeDisabled: req.params.boolean("include_disabled"),
		Permissions:     req.caller.Permissions,
	}
}

func (s *APIServer) getNavigation(ctx context.Context, req *actionRequest) (any, string, error) {
	items, err := s.config.GetNavigation(ctx, s.listOptions(req))
	if err != nil {
		return nil, "", err
	}
	return renderItems(ctx, s, types.CommandNavigationItem, items, s.options.ItemErrors.Navigation, req.cctx), "", nil
}

func (s *APIServer) getDashboardModules(ctx context.Context, req *actionRequest) (any, string, error) {
	items, err := s.config.GetDashboardModules(ctx, s.listOptions(req))
	if err != nil {
		return nil, "", err
	}
	return renderItems(ctx, s, types.CommandDashboardModule, items, s.options.ItemErrors.DashboardModules, req.cctx), "", nil
}

func (s *APIServer) getOverviewStats(ctx context.Context, req *actionRequest) (any, string, error) {
	items, err := s.config.GetOverviewStats(ctx, s.listOptions(req))
	if err != nil {
		return nil, "", err
	}
	return renderItems(ctx, s, types.CommandStatWidget, items, s.options.ItemErrors.OverviewStats, req.cctx), "", nil
}

// renderItems dispatches every item through the registry. Failed items are
// kept as-is or dropped according to policy; permission failures are
// always dropped.
func renderItems[T any](ctx context.Context, s *APIServer, cmdType string, items []T, policy ItemErrorPolicy, cctx *types.CommandContext) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		payload, err := types.ToPayload(item)
		if err == nil {
			var res *command.Result
			res, err = s.registry.Execute(ctx, cmdType, payload, cctx)
			if err == nil {
				out = append(out, res)
				continue
			}
		}

		applied := policy
		if types.KindOf(err) == types.KindPermission {
			applied = ItemErrorDrop
		}
		itemFailures.WithLabelValues(cmdType, string(applied)).Inc()
		s.logger.WithContext(ctx).Warn("Item failed to render",
			log.Str("type", cmdType),
			log.Any("id", payload["id"]),
			log.Str("policy", string(applied)),
			log.Err(err))
		if applied == ItemErrorSubstitute {
			out = append(out, item)
		}
	}
	return out
}

func (s *APIServer) getSettings(ctx context.Context, req *actionRequest) (any, string, error) {
	settings, err := s.config.GetSettings(ctx)
	if err != nil {
		return nil, "", err
	}
	return settings, "", nil
}

func (s *APIServer) getRegisteredHandlers(ctx context.Context, req *actionRequest) (any, string, error) {
	return s.registry.Types(), "", nil
}

func (s *APIServer) getStatsData(ctx context.Context, req *actionRequest) (any, string, error) {
	if s.stats == nil {
		return nil, "", types.NewConfigError(nil, "no stats source configured")
	}
	category := req.params.str("type")
	if category == "" {
		category = types.StatCategoryAll
	}
	data, err := s.stats.Snapshot(ctx, category)
	if err != nil {
		return nil, "", err
	}
	return data, "", nil
}

func (s *APIServer) executeCommand(ctx context.Context, req *actionRequest) (any, string, error) {
	cmdType := req.params.str("command_type")
	if cmdType == "" {
		return nil, "", types.NewMissingFieldError("command_type")
	}
	payload, err := req.params.object("command_data")
	if err != nil {
		return nil, "", err
	}
	res, err := s.registry.Execute(ctx, cmdType, payload, req.cctx)
	if err != nil {
		return nil, "", err
	}
	return res, "Command executed successfully", nil
}

func (s *APIServer) updateModule(ctx context.Context, req *actionRequest) (any, string, error) {
	id := req.params.str("module_id")
	if id == "" {
		return nil, "", types.NewMissingFieldError("module_id")
	}
	partial, err := req.params.object("module_data")
	if err != nil {
		return nil, "", err
	}
	rev, err := s.config.UpdateDashboardModule(ctx, id, partial)
	if err != nil {
		return nil, "", err
	}
	req.w.Header().Set("ETag", etag(rev))
	return map[string]any{"module_id": id, "revision": rev}, "Module updated successfully", nil
}

func (s *APIServer) removeModule(ctx context.Context, req *actionRequest) (any, string, error) {
	id := req.params.str("module_id")
	if id == "" {
		return nil, "", types.NewMissingFieldError("module_id")
	}
	rev, err := s.config.RemoveDashboardModule(ctx, id)
	if err != nil {
		return nil, "", err
	}
	req.w.Header().Set("ETag", etag(rev))
	return map[string]any{"module_id": id, "revision": rev}, "Module removed successfully", nil
}

func (s *APIServer) updateConfig(ctx context.Context, req *actionRequest) (any, string, error) {
	raw, err := req.params.rawJSON("config")
	if err != nil {
		return nil, "", err
	}
	doc, err := configstore.Parse(raw)
	if err != nil {
		return nil, "", err
	}

	expected := revisionFromETag(req.r.Header.Get("If-Match"))
	if expected == "" {
		expected = req.params.str("revision")
	}
	var rev string
	if expected != "" {
		rev, err = s.config.UpdateConfigIfRevision(ctx, doc, expected)
	} else {
		rev, err = s.config.UpdateConfig(ctx, doc)
	}
	if err != nil {
		return nil, "", err
	}
	req.w.Header().Set("ETag", etag(rev))
	return map[string]any{"revision": rev}, "Configuration updated successfully", nil
}

func (s *APIServer) getAuditLog(ctx context.Context, req *actionRequest) (any, string, error) {
	if s.audit == nil {
		return []audit.Entry{}, "", nil
	}
	limit, _ := strconv.Atoi(req.params.str("limit"))
	entries, err := s.audit.Recent(ctx, limit)
	if err != nil {
		return nil, "", err
	}
	return entries, "", nil
}
