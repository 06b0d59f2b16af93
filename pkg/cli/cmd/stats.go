package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/armis/armis/pkg/cli/format"
	"github.com/armis/armis/pkg/stats"
	"github.com/armis/armis/pkg/types"
	"github.com/spf13/cobra"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Record and inspect stat snapshots",
	}
	cmd.AddCommand(newStatsSetCmd(opts), newStatsShowCmd(opts))
	return cmd
}

// parseMetric splits key=value and types the value as an integer, float,
// bool or string, in that order.
func parseMetric(arg string) (string, any, error) {
	key, raw, ok := strings.Cut(arg, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return "", nil, types.NewValidationError("metric", "invalid metric %q (want key=value)", arg)
	}
	key = strings.TrimSpace(key)
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return key, i, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return key, f, nil
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return key, b, nil
	}
	return key, raw, nil
}

func newStatsSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set CATEGORY KEY=VALUE...",
		Short: "Merge metric values into a category snapshot",
		Long: fmt.Sprintf("Merge metric values into a category snapshot.\nCategories: %s.",
			strings.Join(types.StatCategories, ", ")),
		Args: cobra.MinimumNArgs(2),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			category := args[0]
			if category == types.StatCategoryAll {
				return types.NewValidationError("type", "a single category is required")
			}
			if err := stats.ValidateCategory(category); err != nil {
				return err
			}
			metrics := make(map[string]any, len(args)-1)
			for _, a := range args[1:] {
				k, v, err := parseMetric(a)
				if err != nil {
					return err
				}
				metrics[k] = v
			}

			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			snap, err := stats.NewStoreSource(st, e.logger).Set(ctx, category, metrics)
			if err != nil {
				return err
			}
			format.PrintSuccess(cmd.OutOrStdout(), "Updated %d metric(s) in %s (%d total)", len(metrics), category, len(snap.Metrics))
			return nil
		}),
	}
}

func newStatsShowCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show [CATEGORY]",
		Short: "Show stat snapshots (all categories by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			category := types.StatCategoryAll
			if len(args) == 1 {
				category = args[0]
			}
			if err := stats.ValidateCategory(category); err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := e.store(ctx)
			if err != nil {
				return err
			}
			snapshot, err := stats.NewStoreSource(st, e.logger).Snapshot(ctx, category)
			if err != nil {
				return err
			}

			byCategory := map[string]map[string]any{}
			if category == types.StatCategoryAll {
				for c, m := range snapshot {
					byCategory[c], _ = m.(map[string]any)
				}
			} else {
				byCategory[category] = snapshot
			}

			table := format.NewTable("CATEGORY", "METRIC", "VALUE")
			table.Empty = "No metrics recorded"
			categories := make([]string, 0, len(byCategory))
			for c := range byCategory {
				categories = append(categories, c)
			}
			sort.Strings(categories)
			for _, c := range categories {
				keys := make([]string, 0, len(byCategory[c]))
				for k := range byCategory[c] {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					table.Append(c, k, fmt.Sprint(byCategory[c][k]))
				}
			}
			return writeJSONOrTable(cmd.OutOrStdout(), jsonOut, snapshot, table)
		}),
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}
