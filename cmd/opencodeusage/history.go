package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/janekbaraniewski/opencodeusage/internal/history"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and prune stored usage snapshots",
	}

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryWeekCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func openRepository() (*history.Repository, *history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := history.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return history.NewRepository(store), store, nil
}

func newHistoryShowCommand() *cobra.Command {
	var (
		date string
		from string
		to   string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored snapshots (latest by default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, store, err := openRepository()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()

			switch {
			case date != "":
				day, err := time.ParseInLocation(dateLayout, date, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
				}
				snapshot, err := repo.GetSnapshot(ctx, day)
				if err != nil {
					return err
				}
				if snapshot == nil {
					return fmt.Errorf("no snapshot stored for %s", date)
				}
				return printSnapshots([]history.Snapshot{*snapshot})

			case from != "" || to != "":
				if from == "" || to == "" {
					return fmt.Errorf("--from and --to must be used together")
				}
				start, err := time.ParseInLocation(dateLayout, from, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --from %q, want YYYY-MM-DD", from)
				}
				end, err := time.ParseInLocation(dateLayout, to, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --to %q, want YYYY-MM-DD", to)
				}
				snapshots, err := repo.GetRange(ctx, start, end)
				if err != nil {
					return err
				}
				if len(snapshots) == 0 {
					return fmt.Errorf("no snapshots stored between %s and %s", from, to)
				}
				return printSnapshots(snapshots)

			default:
				snapshot, err := repo.GetLatest(ctx)
				if err != nil {
					return err
				}
				if snapshot == nil {
					return fmt.Errorf("no snapshots stored yet, run collect first")
				}
				return printSnapshots([]history.Snapshot{*snapshot})
			}
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "show the snapshot for one date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&from, "from", "", "range start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "range end date (YYYY-MM-DD, inclusive)")
	cmd.MarkFlagsMutuallyExclusive("date", "from")
	cmd.MarkFlagsMutuallyExclusive("date", "to")

	return cmd
}

func newHistoryWeekCommand() *cobra.Command {
	var start string

	cmd := &cobra.Command{
		Use:   "week",
		Short: "Sum the snapshots stored for a seven-day window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, store, err := openRepository()
			if err != nil {
				return err
			}
			defer store.Close()

			startDay := time.Now().UTC().AddDate(0, 0, -6)
			if start != "" {
				startDay, err = time.ParseInLocation(dateLayout, start, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --start %q, want YYYY-MM-DD", start)
				}
			}

			summary, err := repo.GetWeekSummary(cmd.Context(), startDay)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Week\t%s to %s\n",
				summary.StartDate.Format(dateLayout), summary.EndDate.Format(dateLayout))
			fmt.Fprintf(w, "Input tokens\t%d\n", summary.TotalInputTokens)
			fmt.Fprintf(w, "Output tokens\t%d\n", summary.TotalOutputTokens)
			fmt.Fprintf(w, "Reasoning tokens\t%d\n", summary.TotalReasoningTokens)
			fmt.Fprintf(w, "Cache write tokens\t%d\n", summary.TotalCacheWriteTokens)
			fmt.Fprintf(w, "Cache read tokens\t%d\n", summary.TotalCacheReadTokens)
			fmt.Fprintf(w, "Interactions\t%d\n", summary.TotalInteractions)
			fmt.Fprintf(w, "Total cost\t$%.4f\n", summary.TotalCost)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "window start date (YYYY-MM-DD, default six days ago)")

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.RetentionDays
			}

			store, err := history.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := history.NewRepository(store).DeleteOld(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d snapshot(s) older than %d days\n", deleted, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default from settings)")

	return cmd
}

func printSnapshots(snapshots []history.Snapshot) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tINPUT\tOUTPUT\tREASONING\tCACHE W\tCACHE R\tINTERACTIONS\tCOST")
	for _, s := range snapshots {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t$%.4f\n",
			s.Date.Format(dateLayout),
			s.InputTokens,
			s.OutputTokens,
			s.ReasoningTokens,
			s.CacheWriteTokens,
			s.CacheReadTokens,
			s.InteractionCount,
			s.TotalCost,
		)
	}
	return w.Flush()
}
