package cmd

import (
	"context"
	"strings"

	"github.com/armis/armis/pkg/cli/format"
	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/store/repos"
	"github.com/armis/armis/pkg/types"
	"github.com/spf13/cobra"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage operator accounts",
	}
	cmd.AddCommand(newUserCreateCmd(opts), newUserListCmd(opts))
	return cmd
}

// checkPolicies fails with a ValidationError naming the first policy that
// does not exist.
func checkPolicies(ctx context.Context, st store.Store, names []string) error {
	pr := repos.NewPolicyRepo(st)
	for _, name := range names {
		if _, err := pr.Get(ctx, name); err != nil {
			if store.IsNotFoundError(err) {
				return types.NewValidationError("policy", "policy %q does not exist", name)
			}
			return err
		}
	}
	return nil
}

func newUserCreateCmd(opts *rootOptions) *cobra.Command {
	var role, email string
	var policies []string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			if err := checkPolicies(ctx, st, policies); err != nil {
				return err
			}
			u := &types.User{Name: args[0], Email: email, Role: role, Policies: policies}
			if err := repos.NewUserRepo(st).Create(ctx, u); err != nil {
				return err
			}
			format.PrintSuccess(cmd.OutOrStdout(), "User %s created (id %s)", u.Name, u.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&role, "role", "operator", "Role carried in the command context")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringSliceVar(&policies, "policy", []string{"readonly"}, "Policy to attach (repeatable)")
	return cmd
}

func newUserListCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			users, err := repos.NewUserRepo(st).List(ctx, types.NamespaceSystem)
			if err != nil {
				return err
			}
			table := format.NewTable("NAME", "ID", "ROLE", "POLICIES", "CREATED")
			table.Empty = "No users found"
			for _, u := range users {
				table.Append(u.Name, u.ID, u.Role, strings.Join(u.Policies, ","), u.CreatedAt.Format("2006-01-02 15:04"))
			}
			return writeJSONOrTable(cmd.OutOrStdout(), jsonOut, users, table)
		}),
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}
