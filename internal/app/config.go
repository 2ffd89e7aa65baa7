package app

import (
	"time"

	"echopulse/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of log.level.
	Debug bool

	// Silent discards log output.
	Silent bool

	// ConfigPath is the YAML file to load and watch. Empty means
	// echopulse.yaml in the working directory.
	ConfigPath string

	// Overrides come from command line flags and win over file and environment.
	Overrides Overrides

	// Settings is filled in by NewApplication. Tests may pre-populate it to
	// skip loading.
	Settings *config.Config
}

// Overrides holds flag values. Zero values leave the loaded setting alone.
type Overrides struct {
	Addr     string
	Store    string
	Interval time.Duration
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}

// apply copies non-zero overrides onto settings.
func (o Overrides) apply(settings *config.Config) error {
	if o.Addr != "" {
		if err := settings.SetAddr(o.Addr); err != nil {
			return err
		}
	}
	if o.Store != "" {
		settings.Storage.Driver = o.Store
	}
	if o.Interval != 0 {
		settings.Reconcile.Interval = o.Interval
	}
	return nil
}
