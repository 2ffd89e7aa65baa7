package repository

import (
	"context"
	"fmt"
	"strings"

	"echopulse/internal/agent"
)

// Driver names a storage backend.
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverMongo  Driver = "mongo"
	DriverMemory Driver = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver     string
	SQLitePath string
	Mongo      MongoOptions
}

// Open creates the repository selected by opts.Driver. An empty driver means sqlite.
func Open(ctx context.Context, opts Options) (agent.Repository, error) {
	switch Driver(strings.ToLower(opts.Driver)) {
	case DriverSQLite, "":
		return OpenSQLite(ctx, opts.SQLitePath)
	case DriverMongo:
		return ConnectMongo(ctx, opts.Mongo)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", opts.Driver)
	}
}
