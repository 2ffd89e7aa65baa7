package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config is the top-level echopulse configuration, read from echopulse.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig defines the observer endpoint.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Path           string   `yaml:"path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SetAddr splits a host:port listen address into the server section.
func (c *Config) SetAddr(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in listen address %q: %w", addr, err)
	}
	if host == "" {
		host = DefaultHost
	}
	c.Server.Host = host
	c.Server.Port = port
	return nil
}

// ReconcileConfig controls the scheduler and the runtime event watcher.
type ReconcileConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	WatchEvents bool          `yaml:"watch_events"`
	Debounce    time.Duration `yaml:"debounce"`
}

// RuntimeConfig selects the container runtime and the defaults applied to
// agents created by observers.
type RuntimeConfig struct {
	Type         string `yaml:"type"`
	Binary       string `yaml:"binary"`
	DefaultImage string `yaml:"default_image"`
	ManagedLabel string `yaml:"managed_label"`
	// LabelFilter restricts the mirrored inventory to labelled containers.
	LabelFilter string `yaml:"label_filter,omitempty"`
	LogsTail    int    `yaml:"logs_tail"`
}

// StorageConfig selects the agent repository.
type StorageConfig struct {
	Driver          string `yaml:"driver"`
	SQLitePath      string `yaml:"sqlite_path"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
