package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"echopulse/pkg/logging"
)

// Environment variables that override the file.
const (
	EnvStore          = "ECHOPULSE_STORE"
	EnvSQLitePath     = "ECHOPULSE_SQLITE_PATH"
	EnvMongoURI       = "MONGODB_URI"
	EnvAddr           = "ECHOPULSE_ADDR"
	EnvAllowedOrigins = "ALLOWED_ORIGINS"
)

// Load builds the configuration from defaults, the YAML file at path, a .env
// file next to it and the process environment, in that order. A missing
// file yields the defaults. The result is not validated so callers can apply
// flag overrides first and then call Validate.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	config := Default()

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config found at %s, using defaults", path)
	case err != nil:
		return Config{}, newConfigurationError(path, ErrorTypeIO, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, newConfigurationError(path, ErrorTypeParse, err,
				"durations are written like 5s or 500ms",
				"check indentation of the server, reconcile, runtime, storage and log sections")
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	}

	if err := applyEnv(&config); err != nil {
		return Config{}, newConfigurationError(path, ErrorTypeValidation, err)
	}
	return config, nil
}

// LoadValidated is Load followed by Validate.
func LoadValidated(path string) (Config, error) {
	config, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, newConfigurationError(path, ErrorTypeValidation, err)
	}
	return config, nil
}

// loadDotEnv sets variables from a .env file without overriding ones that
// are already present in the environment.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("ConfigLoader", "Ignoring unreadable %s: %v", path, err)
		}
		return
	}
	logging.Debug("ConfigLoader", "Loaded environment from %s", path)
}

func applyEnv(config *Config) error {
	if v := os.Getenv(EnvStore); v != "" {
		config.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		config.Storage.SQLitePath = v
	}
	if v := os.Getenv(EnvMongoURI); v != "" {
		config.Storage.MongoURI = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		if err := config.SetAddr(v); err != nil {
			return err
		}
	}
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		config.Server.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
