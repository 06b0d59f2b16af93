package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/armis/armis/internal/config"
	"github.com/armis/armis/pkg/cli/format"
	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/command/handlers"
	"github.com/armis/armis/pkg/configstore"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate, import and export the dashboard configuration",
	}
	cmd.AddCommand(
		newConfigValidateCmd(),
		newConfigImportCmd(opts),
		newConfigExportCmd(opts),
		newConfigHistoryCmd(opts),
	)
	return cmd
}

// newRegistry builds a registry with the default handlers, used to check
// items the same way the server renders them.
func newRegistry(logger log.Logger) (*command.Registry, error) {
	reg := command.NewRegistry(logger)
	if err := handlers.RegisterDefaults(reg, handlers.Deps{Logger: logger}); err != nil {
		return nil, err
	}
	return reg, nil
}

// backend returns the configured dashboard backend. The store backend
// opens the state store.
func (e *env) backend(ctx context.Context) (configstore.Backend, error) {
	switch e.cfg.Dashboard.Backend {
	case config.BackendStore:
		st, err := e.store(ctx)
		if err != nil {
			return nil, err
		}
		return configstore.NewStoreBackend(st, e.logger), nil
	default:
		return configstore.NewFileBackend(e.cfg.ConfigFilePath(), e.logger), nil
	}
}

func (e *env) configStore(ctx context.Context) (*configstore.ConfigStore, error) {
	b, err := e.backend(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := newRegistry(e.logger)
	if err != nil {
		return nil, err
	}
	return configstore.New(b,
		configstore.WithLogger(e.logger),
		configstore.WithModuleValidator(handlers.ModuleValidator(reg)),
	), nil
}

// validateDocument checks the document structure and then every item with
// its command handler.
func validateDocument(path string, data []byte, logger log.Logger) (*format.Report, error) {
	report := format.NewReport(path)
	doc, err := configstore.Parse(data)
	report.Add("", err)
	if err != nil {
		return report, nil
	}
	reg, err := newRegistry(logger)
	if err != nil {
		return nil, err
	}

	check := func(cmdType, list, id string, item any) {
		payload, err := types.ToPayload(item)
		if err == nil {
			var h command.Handler
			if h, err = reg.Handler(cmdType); err == nil {
				err = h.Validate(payload)
			}
		}
		report.Add(fmt.Sprintf("%s/%s", list, id), err)
	}
	for _, it := range doc.Commands.Navigation {
		check(types.CommandNavigationItem, "navigation", it.ID, it)
	}
	for _, it := range doc.Commands.DashboardModules {
		check(types.CommandDashboardModule, "dashboard_modules", it.ID, it)
	}
	for _, it := range doc.Commands.OverviewStats {
		check(types.CommandStatWidget, "overview_stats", it.ID, it)
	}
	return report, nil
}

func newConfigValidateCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a dashboard configuration document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			report, err := validateDocument(args[0], data, log.NewNopLogger())
			if err != nil {
				return err
			}
			if jsonOut {
				fmt.Fprintln(cmd.OutOrStdout(), report.JSON())
			} else {
				report.Print(cmd.OutOrStdout())
			}
			if !report.OK() {
				return fmt.Errorf("%s: %d problem(s) found", args[0], len(report.Issues))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the report as JSON")
	return cmd
}

func newConfigImportCmd(opts *rootOptions) *cobra.Command {
	var ifRevision string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the stored dashboard configuration with FILE",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, err := configstore.Parse(data)
			if err != nil {
				return err
			}
			cs, err := e.configStore(ctx)
			if err != nil {
				return err
			}
			var rev string
			if ifRevision != "" {
				rev, err = cs.UpdateConfigIfRevision(ctx, doc, ifRevision)
			} else {
				rev, err = cs.UpdateConfig(ctx, doc)
			}
			if err != nil {
				return err
			}
			format.PrintSuccess(cmd.OutOrStdout(), "Configuration imported into %s backend (revision %s)", e.cfg.Dashboard.Backend, rev)
			return nil
		}),
	}
	cmd.Flags().StringVar(&ifRevision, "if-revision", "", "Only import when the stored revision matches")
	return cmd
}

func newConfigExportCmd(opts *rootOptions) *cobra.Command {
	var output, revision string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the stored dashboard configuration",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			var doc *types.ConfigDocument
			if revision != "" {
				b, err := e.backend(ctx)
				if err != nil {
					return err
				}
				h, ok := b.(configstore.Historian)
				if !ok {
					return fmt.Errorf("the %s backend keeps no history", e.cfg.Dashboard.Backend)
				}
				data, err := h.ReadRevision(ctx, revision)
				if err != nil {
					return err
				}
				if doc, err = configstore.Parse(data); err != nil {
					return err
				}
			} else {
				cs, err := e.configStore(ctx)
				if err != nil {
					return err
				}
				if doc, err = cs.Load(ctx, false); err != nil {
					return err
				}
			}
			return writeDocument(cmd.OutOrStdout(), doc, output)
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")
	cmd.Flags().StringVar(&revision, "revision", "", "Export a previous revision (store backend)")
	return cmd
}

func writeDocument(w io.Writer, doc *types.ConfigDocument, output string) error {
	switch output {
	case "json":
		data, err := configstore.Marshal(doc)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return types.NewValidationError("output", "unknown output format %q (want json or yaml)", output)
	}
}

func newConfigHistoryCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored revisions of the dashboard configuration",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			b, err := e.backend(ctx)
			if err != nil {
				return err
			}
			h, ok := b.(configstore.Historian)
			if !ok {
				return fmt.Errorf("the %s backend keeps no history; use --backend store", e.cfg.Dashboard.Backend)
			}
			entries, err := h.History(ctx)
			if err != nil {
				return err
			}
			table := format.NewTable("REVISION", "VERSION", "STORED")
			table.Empty = "No revisions stored"
			for _, en := range entries {
				table.Append(en.Revision, en.Version, en.Timestamp.Format("2006-01-02 15:04:05"))
			}
			return writeJSONOrTable(cmd.OutOrStdout(), jsonOut, entries, table)
		}),
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
