package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"echopulse/internal/config"
	"echopulse/internal/formatting"
	"echopulse/internal/repository"
	"echopulse/pkg/logging"
)

type listOptions struct {
	configPath string
	store      string
	all        bool
	garden     bool
	output     string
	quiet      bool
	debug      bool
}

// newListCmd creates the command that prints agents straight from storage.
// It does not need a running server.
func newListCmd() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mirrored agents from storage",
		Long: `Lists agents from the configured repository.

By default only active agents are shown. --garden shows the Memory Garden
(retired agents, newest first) and --all shows both groups. With
--output json or yaml each group is written as its own document.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultConfigFile, "Configuration file")
	cmd.Flags().StringVar(&opts.store, "store", "", "Storage driver: sqlite or mongo")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Show active agents and the Memory Garden")
	cmd.Flags().BoolVar(&opts.garden, "garden", false, "Show only the Memory Garden")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress titles and totals")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.MarkFlagsMutuallyExclusive("all", "garden")

	return cmd
}

func runList(cmd *cobra.Command, opts *listOptions) error {
	format, ok := formatting.ParseFormat(opts.output)
	if !ok {
		return fmt.Errorf("unsupported output format %q (use table, json or yaml)", opts.output)
	}

	level := logging.LevelWarn
	if opts.debug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())

	settings, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.store != "" {
		settings.Storage.Driver = opts.store
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	repo, err := repository.Open(ctx, repository.Options{
		Driver:     settings.Storage.Driver,
		SQLitePath: settings.Storage.SQLitePath,
		Mongo: repository.MongoOptions{
			URI:        settings.Storage.MongoURI,
			Database:   settings.Storage.MongoDatabase,
			Collection: settings.Storage.MongoCollection,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", settings.Storage.Driver, err)
	}
	defer repo.Close()

	formatter := formatting.New(formatting.Options{
		Format: format,
		Quiet:  opts.quiet,
		Out:    cmd.OutOrStdout(),
	})

	if !opts.garden {
		active, err := repo.List(ctx, true)
		if err != nil {
			return err
		}
		if err := formatter.FormatAgents("Active Echoes", active); err != nil {
			return err
		}
	}
	if opts.garden || opts.all {
		retired, err := repo.ListInactive(ctx)
		if err != nil {
			return err
		}
		if err := formatter.FormatAgents("Memory Garden", retired); err != nil {
			return err
		}
	}
	return nil
}
