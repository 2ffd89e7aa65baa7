package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"echopulse/internal/config"
	"echopulse/pkg/logging"
)

// Application represents the main application structure that bootstraps and
// runs echopulse.
//
// Initialization happens in two phases:
//  1. Bootstrap: load configuration, initialize logging, build services
//  2. Execution: start the services and block until a shutdown signal
//
// Example usage:
//
//	cfg := app.NewConfig(false, "echopulse.yaml")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration, applies flag overrides, validates the
// result and initializes all services. Storage is opened here, so a bad
// database path or unreachable MongoDB fails fast.
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}

	var logOutput io.Writer = os.Stdout
	if cfg.Silent {
		logOutput = io.Discard
	}
	logging.InitForCLI(appLogLevel, logOutput)

	if cfg.Settings == nil {
		settings, err := config.Load(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration")
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.Settings = &settings
	}

	if err := cfg.Overrides.apply(cfg.Settings); err != nil {
		return nil, fmt.Errorf("invalid command line override: %w", err)
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if !cfg.Debug {
		appLogLevel, _ = logging.ParseLevel(cfg.Settings.Log.Level)
	}
	logging.Init(logging.Options{
		Level:  appLogLevel,
		Format: logging.Format(cfg.Settings.Log.Format),
		Output: logOutput,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Settings.Reconcile.Timeout)
	defer cancel()

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Run starts the services and blocks until ctx is cancelled or the process
// receives SIGINT or SIGTERM, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	return runServe(ctx, a.services)
}
