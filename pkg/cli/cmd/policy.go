package cmd

import (
	"strings"

	"github.com/armis/armis/pkg/cli/format"
	"github.com/armis/armis/pkg/store/repos"
	"github.com/armis/armis/pkg/types"
	"github.com/spf13/cobra"
)

func newPolicyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage access policies",
	}
	cmd.AddCommand(newPolicyListCmd(opts), newPolicyCreateCmd(opts), newPolicyDeleteCmd(opts))
	return cmd
}

func formatRules(rules []types.PolicyRule) string {
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		parts = append(parts, r.Resource+":"+strings.Join(r.Verbs, ","))
	}
	return strings.Join(parts, " ")
}

// parseRule parses "resource:verb,verb".
func parseRule(s string) (types.PolicyRule, error) {
	resource, verbs, ok := strings.Cut(s, ":")
	if !ok || resource == "" || verbs == "" {
		return types.PolicyRule{}, types.NewValidationError("rule", "invalid rule %q (want resource:verb[,verb])", s)
	}
	return types.PolicyRule{Resource: resource, Verbs: strings.Split(verbs, ",")}, nil
}

func newPolicyListCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List policies",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			policies, err := repos.NewPolicyRepo(st).List(ctx)
			if err != nil {
				return err
			}
			table := format.NewTable("NAME", "BUILTIN", "RULES", "PERMISSIONS", "DESCRIPTION")
			for _, p := range policies {
				builtin := ""
				if p.Builtin {
					builtin = "yes"
				}
				table.Append(p.Name, builtin, formatRules(p.Rules), strings.Join(p.Permissions, ","), format.Truncate(p.Description, 40))
			}
			return writeJSONOrTable(cmd.OutOrStdout(), jsonOut, policies, table)
		}),
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newPolicyCreateCmd(opts *rootOptions) *cobra.Command {
	var rules, permissions []string
	var desc string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a policy granting API verbs and dashboard permissions",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			p := &types.Policy{Name: args[0], Description: desc, Permissions: permissions}
			for _, r := range rules {
				rule, err := parseRule(r)
				if err != nil {
					return err
				}
				p.Rules = append(p.Rules, rule)
			}
			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			if err := repos.NewPolicyRepo(st).Create(ctx, p); err != nil {
				return err
			}
			format.PrintSuccess(cmd.OutOrStdout(), "Policy %s created", p.Name)
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&rules, "rule", nil, "Rule as resource:verb[,verb] (repeatable)")
	cmd.Flags().StringSliceVar(&permissions, "permission", nil, "Dashboard permission granted (repeatable)")
	cmd.Flags().StringVar(&desc, "description", "", "Description")
	return cmd
}

func newPolicyDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a policy",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			pr := repos.NewPolicyRepo(st)
			p, err := pr.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if p.Builtin {
				return types.NewForbiddenError("policy %s is built in", p.Name)
			}
			if err := pr.Delete(ctx, p.Name); err != nil {
				return err
			}
			format.PrintSuccess(cmd.OutOrStdout(), "Policy %s deleted", p.Name)
			return nil
		}),
	}
}
