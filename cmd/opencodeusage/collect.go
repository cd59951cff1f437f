package main

import (
	"errors"
	"fmt"

	"github.com/janekbaraniewski/opencodeusage/internal/history"
	"github.com/janekbaraniewski/opencodeusage/internal/opencode"
	"github.com/spf13/cobra"
)

func newCollectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Save today's usage snapshot to the history database",
		Long:  "Aggregates all-time usage and stores it as today's snapshot. The database keeps one row per date, so re-running replaces today's snapshot with the fresh reading.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			reader, err := opencode.NewReader(cfg.StorageRoot)
			if err != nil {
				return err
			}

			metrics, err := reader.GetUsage()
			if errors.Is(err, opencode.ErrNoDataFound) {
				return fmt.Errorf("no usage data found under %s, nothing to collect", reader.StoragePath())
			}
			if err != nil {
				return err
			}

			store, err := history.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			collector := history.NewCollector(history.NewRepository(store))
			saved, err := collector.CollectAndSave(cmd.Context(), metrics)
			if err != nil {
				return err
			}

			if saved {
				date, _ := collector.LastCollectionDate()
				fmt.Printf("Saved snapshot for %s\n", date.Format("2006-01-02"))
			} else {
				fmt.Println("Already collected today, nothing saved")
			}
			return nil
		},
	}
}
