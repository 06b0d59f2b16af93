package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/armis/armis/pkg/cli/format"
	"github.com/armis/armis/pkg/store/repos"
	"github.com/armis/armis/pkg/types"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and revoke API tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(opts), newTokenRevokeCmd(opts), newTokenListCmd(opts))
	return cmd
}

func newTokenIssueCmd(opts *rootOptions) *cobra.Command {
	var userName, name, desc, outFile string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token for a user",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			if userName == "" {
				return types.NewMissingFieldError("user")
			}
			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			u, err := repos.NewUserRepo(st).Get(ctx, types.NamespaceSystem, userName)
			if err != nil {
				return fmt.Errorf("user %s: %w", userName, err)
			}
			if name == "" {
				name = userName + "-token"
			}
			tok, secret, err := repos.NewTokenRepo(st).Issue(ctx, name, u.ID, desc, ttl)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outFile != "" {
				if err := os.MkdirAll(filepath.Dir(outFile), 0o700); err != nil {
					return err
				}
				if err := os.WriteFile(outFile, []byte(secret), 0o600); err != nil {
					return fmt.Errorf("failed to write token to %s: %w", outFile, err)
				}
				format.PrintSuccess(out, "Token issued: id=%s name=%s written to %s", tok.ID, tok.Name, outFile)
				return nil
			}
			format.PrintSuccess(out, "Token issued: id=%s name=%s", tok.ID, tok.Name)
			fmt.Fprintln(out, secret)
			return nil
		}),
	}
	cmd.Flags().StringVar(&userName, "user", "", "User the token authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "Token name (default <user>-token)")
	cmd.Flags().StringVar(&desc, "description", "", "Description")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Time-to-live (e.g., 24h). 0 means no expiry")
	cmd.Flags().StringVar(&outFile, "out-file", "", "Write the secret to this file (0600) instead of stdout")
	return cmd
}

func newTokenRevokeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke a token",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			if err := repos.NewTokenRepo(st).Revoke(ctx, args[0]); err != nil {
				return err
			}
			format.PrintSuccess(cmd.OutOrStdout(), "Token %s revoked", args[0])
			return nil
		}),
	}
}

func tokenStatus(t *types.Token, now time.Time) string {
	switch {
	case t.Revoked:
		return "revoked"
	case !t.Valid(now):
		return "expired"
	default:
		return "active"
	}
}

func newTokenListCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tokens",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			tokens, err := repos.NewTokenRepo(st).List(ctx)
			if err != nil {
				return err
			}
			for i := range tokens {
				tokens[i].SecretHash = ""
			}
			now := time.Now()
			table := format.NewTable("ID", "NAME", "SUBJECT", "ISSUED", "EXPIRES", "STATUS")
			table.Empty = "No tokens found"
			for i := range tokens {
				t := &tokens[i]
				exp := "-"
				if t.ExpiresAt != nil {
					exp = t.ExpiresAt.Format(time.RFC3339)
				}
				table.Append(t.ID, t.Name, t.SubjectID, t.IssuedAt.Format(time.RFC3339), exp, format.StatusLabel(tokenStatus(t, now)))
			}
			return writeJSONOrTable(cmd.OutOrStdout(), jsonOut, tokens, table)
		}),
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}
