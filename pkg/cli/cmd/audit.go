package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/armis/armis/pkg/audit"
	"github.com/armis/armis/pkg/cli/format"
	"github.com/spf13/cobra"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the command audit log",
	}
	cmd.AddCommand(newAuditTailCmd(opts))
	return cmd
}

func newAuditTailCmd(opts *rootOptions) *cobra.Command {
	var n int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent dispatched commands",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			path := e.cfg.AuditPath()
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			al, err := audit.Open(path, e.logger)
			if err != nil {
				return err
			}
			defer al.Close()

			entries, err := al.Recent(cmd.Context(), n)
			if err != nil {
				return err
			}
			table := format.NewTable("TIME", "TYPE", "USER", "ACTION", "STATUS", "DURATION", "ERROR")
			table.Empty = "No audit entries"
			for _, en := range entries {
				table.Append(
					en.Time.Local().Format(time.DateTime),
					en.Type,
					en.UserID,
					en.Action,
					format.StatusLabel(en.Status),
					fmt.Sprintf("%dms", en.DurationMS),
					format.Truncate(en.Error, 60),
				)
			}
			return writeJSONOrTable(cmd.OutOrStdout(), jsonOut, entries, table)
		}),
	}
	cmd.Flags().IntVarP(&n, "lines", "n", audit.DefaultLimit, "Number of entries to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}
