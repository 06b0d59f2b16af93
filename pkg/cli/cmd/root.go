// Package cmd implements the armis admin CLI. Commands operate directly on
// the local data directory; the badger store is single-process, so store
// backed commands need armisd to be stopped.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/armis/armis/internal/config"
	"github.com/armis/armis/pkg/api/server"
	"github.com/armis/armis/pkg/cli/format"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/version"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	cfgFile string
	dataDir string
	backend string
	verbose bool
	noColor bool
}

// env is the per-invocation state: resolved settings plus a lazily opened
// state store.
type env struct {
	cfg    *config.Config
	logger log.Logger
	st     *store.BadgerStore
}

func (o *rootOptions) env() (*env, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.backend != "" {
		cfg.Dashboard.Backend = o.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.NewNopLogger()
	if o.verbose {
		if logger, err = log.New("debug", "text"); err != nil {
			return nil, err
		}
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// store opens the badger store on first use and seeds the built-in
// policies.
func (e *env) store(ctx context.Context) (store.Store, error) {
	if e.st != nil {
		return e.st, nil
	}
	dir := e.cfg.StorePath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	st := store.NewBadgerStore(e.logger)
	if err := st.Open(dir); err != nil {
		return nil, fmt.Errorf("failed to open state store at %s (is armisd running?): %w", dir, err)
	}
	if err := server.SeedBuiltinPolicies(ctx, st); err != nil {
		_ = st.Close()
		return nil, err
	}
	e.st = st
	return st, nil
}

func (e *env) Close() error {
	if e.st == nil {
		return nil
	}
	err := e.st.Close()
	e.st = nil
	return err
}

// withEnv wraps a command body with env setup and teardown.
func (o *rootOptions) withEnv(fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := o.env()
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd, args, e)
	}
}

// NewRootCmd builds the armis command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "armis",
		Short: "ARMIS command center administration",
		Long: `armis manages the data directory of an ARMIS command center:
the dashboard configuration document, users, tokens, policies,
stat snapshots and the command audit log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				format.EnableColor(false)
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "armisd config file (default armis.yaml in ., $HOME/.armis, /etc/armis)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "data directory (overrides the config file)")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "dashboard configuration backend: file or store")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newConfigCmd(opts),
		newUserCmd(opts),
		newTokenCmd(opts),
		newPolicyCmd(opts),
		newStatsCmd(opts),
		newAuditCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, format.Error("Error:"), err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the ARMIS version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

func writeJSONOrTable(w io.Writer, asJSON bool, v any, table *format.Table) error {
	if asJSON {
		return printJSON(w, v)
	}
	return table.Render(w)
}
