package main

import (
	"io"
	"log"
	"os"

	"github.com/janekbaraniewski/opencodeusage/internal/config"
	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagStorage string
	flagDB      string
)

func main() {
	if os.Getenv("OPENCODEUSAGE_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	root := &cobra.Command{
		Use:           "opencodeusage",
		Short:         "opencodeusage reports token usage and spend from local OpenCode storage.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to settings file (default "+config.ConfigPath()+")")
	root.PersistentFlags().StringVar(&flagStorage, "storage", "", "override the OpenCode storage root")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "override the history database path")

	root.AddCommand(newUsageCommand())
	root.AddCommand(newCollectCommand())
	root.AddCommand(newHistoryCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves effective settings: file (or defaults), then flag
// overrides.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadFrom(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, err
	}

	if flagStorage != "" {
		cfg.StorageRoot = flagStorage
	}
	if flagDB != "" {
		cfg.DatabasePath = flagDB
	}
	return cfg, nil
}
