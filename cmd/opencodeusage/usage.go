package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/janekbaraniewski/opencodeusage/internal/opencode"
	"github.com/spf13/cobra"
)

func newUsageCommand() *cobra.Command {
	var (
		today     bool
		month     bool
		lastMonth bool
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print aggregated token usage and cost",
		Long:  "Aggregates OpenCode part files into token and cost totals. Defaults to all-time; use a window flag to narrow.",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			reader, err := opencode.NewReader(cfg.StorageRoot)
			if err != nil {
				return err
			}

			var (
				label   string
				metrics opencode.UsageMetrics
			)
			switch {
			case today:
				label = "today"
				metrics, err = reader.GetUsageToday()
			case month:
				label = "this month"
				metrics, err = reader.GetUsageMonth()
			case lastMonth:
				label = "last month"
				metrics, err = reader.GetUsageLastMonth()
			default:
				label = "all time"
				metrics, err = reader.GetUsage()
			}
			if errors.Is(err, opencode.ErrNoDataFound) {
				return fmt.Errorf("no usage data found for %s under %s", label, reader.StoragePath())
			}
			if err != nil {
				return err
			}

			return printMetrics(label, metrics)
		},
	}

	cmd.Flags().BoolVar(&today, "today", false, "only files modified during the current UTC day")
	cmd.Flags().BoolVar(&month, "month", false, "only files modified during the current UTC month")
	cmd.Flags().BoolVar(&lastMonth, "last-month", false, "only files modified during the previous UTC month")
	cmd.MarkFlagsMutuallyExclusive("today", "month", "last-month")

	return cmd
}

func printMetrics(label string, m opencode.UsageMetrics) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Usage (%s)\t\n", label)
	fmt.Fprintf(w, "Input tokens\t%d\n", m.TotalInputTokens)
	fmt.Fprintf(w, "Output tokens\t%d\n", m.TotalOutputTokens)
	fmt.Fprintf(w, "Reasoning tokens\t%d\n", m.TotalReasoningTokens)
	fmt.Fprintf(w, "Cache write tokens\t%d\n", m.TotalCacheWriteTokens)
	fmt.Fprintf(w, "Cache read tokens\t%d\n", m.TotalCacheReadTokens)
	fmt.Fprintf(w, "Interactions\t%d\n", m.InteractionCount)
	fmt.Fprintf(w, "Total cost\t$%.4f\n", m.TotalCost)
	fmt.Fprintf(w, "Captured at\t%s\n", m.CapturedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	return w.Flush()
}
