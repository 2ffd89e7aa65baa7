package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"echopulse/internal/app"
	"echopulse/internal/config"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath is the YAML file to load and watch for changes.
var serveConfigPath string

// Flag overrides. They win over the file and the environment.
var (
	serveAddr     string
	serveStore    string
	serveInterval time.Duration
)

// serveCmd starts reconciliation and the observer endpoint.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Mirror the container runtime and serve observers",
	Long: `Starts the echopulse server.

A reconciliation cycle runs at startup, every --interval, after each observer
command and, when runtime events are enabled, shortly after container
lifecycle events. Every cycle is followed by a full_update broadcast to all
connected observers.

Observers connect to ws://<addr>/ws. Read-only HTTP endpoints are served at
/healthz, /api/agents, /api/zones and /api/metrics.

Configuration:
  Settings are read from --config (default echopulse.yaml; a missing file
  means defaults), then a .env file next to it, then the environment
  (ECHOPULSE_STORE, ECHOPULSE_SQLITE_PATH, MONGODB_URI, ECHOPULSE_ADDR,
  ALLOWED_ORIGINS), then flags. Edits to reconcile.interval in the file are
  applied without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveConfigPath)
	cfg.Overrides = app.Overrides{
		Addr:     serveAddr,
		Store:    serveStore,
		Interval: serveInterval,
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigFile, "Configuration file")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, e.g. 0.0.0.0:8502")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Storage driver: sqlite, mongo or memory")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "Reconciliation interval, e.g. 5s")
}
