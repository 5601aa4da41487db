package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"livecard/internal/config"
)

// rootFlags carries persistent flags and the loaded configuration.
type rootFlags struct {
	configDir string
	cfg       config.Config
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "livecard",
		Short:         "Live fight-card simulator and event completion sweeper",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v := config.New(flags.configDir)
			bindings := map[string]string{
				"database.driver": "db-driver",
				"database.dsn":    "db-dsn",
				"database.path":   "db-path",
				"redis.addr":      "redis-addr",
				"log.level":       "log-level",
				"log.format":      "log-format",
			}
			for key, name := range bindings {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			flags.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config", ".", "Directory containing config.yaml")
	pf.String("db-driver", "memory", "Store driver (memory, postgres, sqlite)")
	pf.String("db-dsn", "", "Postgres connection string")
	pf.String("db-path", "livecard.db", "SQLite database file")
	pf.String("redis-addr", "", "Redis address for the simulation lease (empty disables it)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "json", "Log format (json, text)")

	root.AddCommand(
		newServeCmd(flags),
		newSimulateCmd(flags),
		newSweepCmd(flags),
		newCompleteCmd(flags),
		newResetCmd(flags),
		newSeedCmd(flags),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
