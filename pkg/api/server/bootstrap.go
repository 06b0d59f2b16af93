package server

import (
	"context"

	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/store/repos"
	"github.com/armis/armis/pkg/types"
)

// BuiltinPolicies are seeded on startup. Verbs map to dashboard actions:
// get and list read, execute dispatches commands, update and delete edit
// the configuration, watch streams events, audit reads the audit log.
func BuiltinPolicies() []types.Policy {
	return []types.Policy{
		{Name: "root", Description: "Full access", Builtin: true, Rules: []types.PolicyRule{{Resource: "*", Verbs: []string{"*"}}}},
		{Name: "admin", Description: "Full access", Builtin: true, Rules: []types.PolicyRule{{Resource: "*", Verbs: []string{"*"}}}},
		{Name: "readwrite", Description: "Read, dispatch and edit the dashboard", Builtin: true, Rules: []types.PolicyRule{{Resource: ResourceDashboard, Verbs: []string{"get", "list", "watch", "execute", "update", "delete"}}}},
		{Name: "readonly", Description: "Read-only", Builtin: true, Rules: []types.PolicyRule{{Resource: ResourceDashboard, Verbs: []string{"get", "list", "watch"}}}},
	}
}

// SeedBuiltinPolicies ensures the built-in policies exist (idempotent).
func SeedBuiltinPolicies(ctx context.Context, st store.Store) error {
	pr := repos.NewPolicyRepo(st)
	builtins := BuiltinPolicies()
	for i := range builtins {
		if _, err := pr.Get(ctx, builtins[i].Name); err == nil {
			continue
		}
		if err := pr.Create(ctx, &builtins[i]); err != nil {
			return err
		}
	}
	return nil
}
