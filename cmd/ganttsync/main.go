package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/acme/ganttsync/internal/config"
	"github.com/acme/ganttsync/internal/db"
	"github.com/acme/ganttsync/internal/fields"
	"github.com/acme/ganttsync/internal/logging"
)

var (
	configPath string
	logLevel   string

	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "ganttsync",
	Short: "Delta sync backend for a Gantt grid",
	Long: `ganttsync persists the tasks and dependencies edited in a Gantt grid.

The grid loads everything from GET /data and posts batched changes to
POST /api. Each batch is applied to a SQLite store and answered with the
rows the client must reconcile (server-assigned ids, normalized fields).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		cfg = c
		logger, logCloser = logging.Setup(cfg.Log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./ganttsync.yaml or $GANTTSYNC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (trace, debug, info, warn, error)")
}

// openStore opens the configured database with its sanitizer and makes sure
// the schema exists.
func openStore() (*db.DB, error) {
	dbc := cfg.DB()
	dbc.Sanitizer = fields.NewSanitizer(cfg.Rules(), &logger)
	dbc.Logger = &logger

	store, err := db.Open(dbc)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
