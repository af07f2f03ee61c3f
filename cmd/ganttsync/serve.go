package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/acme/ganttsync/internal/db"
	"github.com/acme/ganttsync/internal/fields"
	"github.com/acme/ganttsync/internal/server"
	gsync "github.com/acme/ganttsync/internal/sync"
	"github.com/acme/ganttsync/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Start the sync server",
	Long: `Start the HTTP server the grid talks to.

Endpoints:
  GET  /data    full snapshot of tasks and dependencies
  POST /api     apply a change batch
  GET  /ws      websocket change feed (broadcast.enabled)
  GET  /health  liveness check

When fields.rules_file is set the excluded and date field lists are read from
that YAML file and reloaded whenever it changes. Under systemd the server
reports readiness with sd_notify.

Example usage:
  ganttsync serve                       # listen on :8010
  ganttsync serve --addr :9000
  ganttsync serve --atomic --multi-row  # transactional, every row persisted`,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("atomic") {
			cfg.Sync.Atomic, _ = cmd.Flags().GetBool("atomic")
		}
		if cmd.Flags().Changed("multi-row") {
			cfg.Sync.MultiRow, _ = cmd.Flags().GetBool("multi-row")
		}

		store, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		var watcher *fields.Watcher
		if cfg.Fields.RulesFile != "" {
			watcher, err = fields.NewWatcher(store.Sanitizer(), fields.WatcherConfig{
				Path:   cfg.Fields.RulesFile,
				Logger: &logger,
			})
			if err == nil {
				err = watcher.Start()
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading field rules: %v\n", err)
				os.Exit(1)
			}
			defer watcher.Stop()
		}

		if cfg.Storage.CheckpointSchedule != "" {
			m, err := db.NewMaintainer(store, cfg.Storage.CheckpointSchedule)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			m.Start()
			defer m.Stop()
		}

		processor := gsync.New(store, &gsync.Config{
			Atomic:   cfg.Sync.Atomic,
			MultiRow: cfg.Sync.MultiRow,
			Logger:   &logger,
		})
		reader := gsync.NewReader(store, &logger)

		srv := server.New(&server.Config{
			Addr:          cfg.Server.Addr,
			AllowedOrigin: cfg.Server.AllowedOrigin,
			TLSCert:       cfg.Server.TLSCert,
			TLSKey:        cfg.Server.TLSKey,
			ReadTimeout:   cfg.Server.ReadTimeout,
			WriteTimeout:  cfg.Server.WriteTimeout,
			MaxBodyBytes:  cfg.Server.MaxBodyBytes,
			Broadcast:     cfg.Broadcast.Enabled,
			BroadcastRate: cfg.Broadcast.RatePerSec,
			Logger:        &logger,
		}, processor, reader)

		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start server: %v\n", err)
			os.Exit(1)
		}

		scheme := "http"
		if cfg.Server.TLSCert != "" {
			scheme = "https"
		}
		fmt.Printf("%s Serving %s on %s://%s\n", ui.RenderPass("✓"), store.Path(), scheme, srv.Addr())
		fmt.Printf("   %s\n", ui.KeyValue("Origin: ", cfg.Server.AllowedOrigin))
		fmt.Printf("   %s\n", ui.KeyValue("Mode:   ", modeLabel()))
		fmt.Println(ui.RenderMuted("\nPress Ctrl+C to stop..."))

		if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			logger.Warn().Err(err).Msg("sd_notify ready failed")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
		fmt.Println("\nShutting down...")
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Server stopped")
	},
}

func modeLabel() string {
	mode := "best-effort"
	if cfg.Sync.Atomic {
		mode = "atomic"
	}
	if cfg.Sync.MultiRow {
		mode += ", multi-row"
	} else {
		mode += ", first-row"
	}
	if cfg.Sync.SanitizeUpdates {
		mode += ", sanitized updates"
	}
	return mode
}

func init() {
	serveCmd.Flags().String("addr", ":8010", "Address to listen on")
	serveCmd.Flags().Bool("atomic", false, "Apply each batch in one transaction")
	serveCmd.Flags().Bool("multi-row", false, "Persist every added row and delete every removed stub")

	rootCmd.AddCommand(serveCmd)
}
