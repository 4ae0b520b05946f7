// Package config loads every server setting from the process environment.
// There is no config file: the data-source location, listen addresses and
// pool sizes all arrive as environment variables at startup.
package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Storage backend selectors.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMongo  = "mongo"
)

type Config struct {
	BindAddr  string `env:"BIND_ADDR, default=:2606"`
	OpsAddr   string `env:"OPS_ADDR,  default=:8080"`
	Env       string `env:"ENV,       default=development"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	JWTSecret string `env:"JWT_SECRET, default=dev-secret-change-me"`

	// Storage selects the persistence backend: file, sqlite or mongo.
	Storage string `env:"STORAGE, default=file"`

	// FilePath is used by the file backend. Left unset it falls back to the
	// default location.
	FilePath string `env:"FILE_PATH, default=./data/workers.json"`
	// SQLitePath is used by the sqlite backend.
	SQLitePath string `env:"SQLITE_PATH, default=./data/crewd.db"`

	Mongo MongoConfig
	Redis RedisConfig
	Pool  PoolConfig
}

type MongoConfig struct {
	// URI carries host and credentials. It has no default on purpose:
	// running with STORAGE=mongo and no URI is a fatal startup error.
	URI      string `env:"MONGO_URI"`
	Database string `env:"MONGO_DB, default=crewd"`
}

type RedisConfig struct {
	// Addr enables the credential cache when non-empty.
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

type PoolConfig struct {
	ReadWorkers     int `env:"READ_WORKERS,     default=16"`
	DispatchWorkers int `env:"DISPATCH_WORKERS, default=0"` // 0 = NumCPU
	SendWorkers     int `env:"SEND_WORKERS,     default=16"`
	IOTimeoutSec    int `env:"IO_TIMEOUT_SECONDS,     default=30"`
	DrainGraceSec   int `env:"DRAIN_GRACE_SECONDS,    default=10"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageFile, StorageSQLite:
		return nil
	case StorageMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("STORAGE=mongo requires MONGO_URI to be set")
		}
		return nil
	default:
		return fmt.Errorf("unknown STORAGE value %q (expected file, sqlite or mongo)", c.Storage)
	}
}
