package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"echopulse/internal/agent"
	"echopulse/internal/config"
	"echopulse/internal/containerizer"
	"echopulse/internal/hub"
	"echopulse/internal/reconciler"
	"echopulse/internal/repository"
	"echopulse/pkg/logging"
)

// newContainerRuntime is a variable to allow substitution in tests.
var newContainerRuntime = func(rc config.RuntimeConfig) (containerizer.ContainerRuntime, error) {
	return containerizer.NewContainerRuntime(rc.Type, containerizer.DockerOptions{
		Binary:       rc.Binary,
		ManagedLabel: rc.ManagedLabel,
		LabelFilter:  rc.LabelFilter,
	})
}

// Services holds every long-lived component of a running echopulse.
//
// Dependencies flow one way: the scheduler reads the runtime and writes the
// repository through the reconciler, the hub reads the repository and
// drives the runtime, and the scheduler notifies the hub after each cycle.
type Services struct {
	Settings config.Config

	Repository agent.Repository
	Runtime    containerizer.ContainerRuntime
	Scheduler  *reconciler.Scheduler

	// Detector is nil when reconcile.watch_events is off.
	Detector *reconciler.EventDetector

	Hub    *hub.Hub
	Server *hub.Server

	// Watcher is nil when no configuration path is known.
	Watcher *config.Watcher
}

// InitializeServices opens storage and the container runtime and wires the
// scheduler, event detector, hub and server together. Nothing is started.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	settings := *cfg.Settings

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
		return nil, fmt.Errorf("failed to open %s storage: %w", settings.Storage.Driver, err)
	}
	logging.Info("Services", "Opened %s storage", settings.Storage.Driver)

	runtime, err := newContainerRuntime(settings.Runtime)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to create container runtime: %w", err)
	}

	scheduler := reconciler.NewScheduler(reconciler.SchedulerConfig{
		Interval:     settings.Reconcile.Interval,
		CycleTimeout: settings.Reconcile.Timeout,
		RunOnStart:   true,
	}, runtime, reconciler.NewReconciler(repo))

	h := hub.New(hub.Config{
		DefaultImage: settings.Runtime.DefaultImage,
		LogsTail:     settings.Runtime.LogsTail,
	}, repo, runtime, scheduler)
	scheduler.AddListener(h.OnCycle)

	services := &Services{
		Settings:   settings,
		Repository: repo,
		Runtime:    runtime,
		Scheduler:  scheduler,
		Hub:        h,
		Server: hub.NewServer(hub.ServerConfig{
			Addr:           settings.Server.Addr(),
			Path:           settings.Server.Path,
			AllowedOrigins: settings.Server.AllowedOrigins,
		}, h, scheduler),
	}

	if settings.Reconcile.WatchEvents {
		services.Detector = reconciler.NewEventDetector(runtime, scheduler, settings.Reconcile.Debounce)
	}

	if cfg.ConfigPath != "" {
		// Flags keep winning over the file, except for the interval which
		// an explicit edit is allowed to change.
		sticky := cfg.Overrides
		sticky.Interval = 0
		services.Watcher = config.NewWatcher(config.WatcherConfig{
			Path: cfg.ConfigPath,
			OnChange: func(next config.Config) {
				if err := sticky.apply(&next); err != nil {
					logging.Warn("Services", "Ignoring reloaded configuration: %v", err)
					return
				}
				services.applyReload(next)
			},
		})
	}

	return services, nil
}

// Start brings the services up. A runtime that cannot stream events only
// costs responsiveness, so detector and watcher failures are logged and
// periodic reconciliation carries on.
func (s *Services) Start(ctx context.Context) error {
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if s.Detector != nil {
		if err := s.Detector.Start(ctx); err != nil {
			logging.Warn("Services", "Runtime events unavailable, relying on periodic reconciliation: %v", err)
		}
	}

	if err := s.Server.Start(); err != nil {
		_ = s.Scheduler.Stop()
		if s.Detector != nil {
			_ = s.Detector.Stop()
		}
		return fmt.Errorf("failed to start server: %w", err)
	}

	if s.Watcher != nil {
		if err := s.Watcher.Start(); err != nil {
			logging.Warn("Services", "Config hot reload disabled: %v", err)
		}
	}
	return nil
}

// Stop shuts down in reverse dependency order: no new cycles, no new
// triggers, observers closed, listener closed, storage closed last.
func (s *Services) Stop(ctx context.Context) error {
	var errs []error

	if s.Watcher != nil {
		s.Watcher.Stop()
	}
	if err := s.Scheduler.Stop(); err != nil {
		errs = append(errs, err)
	}
	if s.Detector != nil {
		if err := s.Detector.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	s.Hub.CloseAll()
	if err := s.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := s.Repository.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}
	return errors.Join(errs...)
}

// applyReload applies the parts of a reloaded configuration that can change
// at runtime.
func (s *Services) applyReload(next config.Config) {
	if next.Reconcile.Interval != s.Settings.Reconcile.Interval {
		if err := s.Scheduler.SetInterval(next.Reconcile.Interval); err != nil {
			logging.Warn("Services", "Ignoring reconcile interval %v: %v", next.Reconcile.Interval, err)
		} else {
			logging.Info("Services", "Reconcile interval changed from %v to %v",
				s.Settings.Reconcile.Interval, next.Reconcile.Interval)
			s.Settings.Reconcile.Interval = next.Reconcile.Interval
		}
	}
	next.Reconcile.Interval = s.Settings.Reconcile.Interval
	if !reflect.DeepEqual(next, s.Settings) {
		logging.Warn("Services", "Only reconcile.interval is applied live; other changes take effect after a restart")
	}
}
