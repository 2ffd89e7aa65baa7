package config

import "time"

const (
	DefaultConfigFile = "echopulse.yaml"

	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8502
	DefaultPath         = "/ws"
	DefaultInterval     = 5 * time.Second
	DefaultTimeout      = 30 * time.Second
	DefaultDebounce     = 500 * time.Millisecond
	DefaultImage        = "hello-world"
	DefaultManagedLabel = "source=echosim"
	DefaultLogsTail     = 100
	DefaultSQLitePath   = "simverse.db"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           DefaultHost,
			Port:           DefaultPort,
			Path:           DefaultPath,
			AllowedOrigins: []string{},
		},
		Reconcile: ReconcileConfig{
			Interval:    DefaultInterval,
			Timeout:     DefaultTimeout,
			WatchEvents: true,
			Debounce:    DefaultDebounce,
		},
		Runtime: RuntimeConfig{
			Type:         "docker",
			Binary:       "docker",
			DefaultImage: DefaultImage,
			ManagedLabel: DefaultManagedLabel,
			LogsTail:     DefaultLogsTail,
		},
		Storage: StorageConfig{
			Driver:          "sqlite",
			SQLitePath:      DefaultSQLitePath,
			MongoDatabase:   "echopulse",
			MongoCollection: "agents",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
