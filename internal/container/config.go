// Package container provides dependency injection and lifecycle management
// for the barangay request lifecycle service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/audit"
)

// Storage drivers
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds all configuration for the Container.
type Config struct {
	// Storage selects the record store: sqlite or memory
	Storage string

	// Database configuration, used by the sqlite store
	Database DatabaseConfig

	// Engine retry settings
	Engine EngineConfig

	// Authz points at the staff directory
	Authz AuthzConfig

	// Audit delivery configuration
	Audit AuditConfig

	// Server configuration
	Server ServerConfig

	// MetricsEnabled registers prometheus collectors
	MetricsEnabled bool
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits on a locked database
	BusyTimeout time.Duration

	// AutoMigrate applies pending migrations on start
	AutoMigrate bool
}

// EngineConfig holds lifecycle engine settings.
type EngineConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// AuthzConfig holds staff directory settings.
type AuthzConfig struct {
	StaffDirectory string

	// ReloadInterval enables polling for directory changes when positive
	ReloadInterval time.Duration
}

// AuditConfig holds audit delivery settings.
type AuditConfig struct {
	// RedisAddr enables the stream publisher when set
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	StreamMaxLen  int64

	Delivery audit.DeliveryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageSQLite,
		Database: DatabaseConfig{
			Path:            "data/barangay.db",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: 30 * time.Minute,
			BusyTimeout:     5 * time.Second,
			AutoMigrate:     true,
		},
		Engine: EngineConfig{
			MaxRetries:   3,
			RetryBackoff: 50 * time.Millisecond,
		},
		Authz: AuthzConfig{
			StaffDirectory: "configs/staff.yaml",
			ReloadInterval: 30 * time.Second,
		},
		Audit: AuditConfig{
			RedisStream:  "barangay:transitions",
			StreamMaxLen: 100000,
			Delivery: audit.DeliveryConfig{
				Buffer:       10000,
				RetryBackoff: 200 * time.Millisecond,
				MaxBackoff:   30 * time.Second,
				FlushTimeout: 5 * time.Second,
			},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		MetricsEnabled: true,
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage)
	}

	if c.Authz.StaffDirectory == "" {
		return fmt.Errorf("authz.staff_directory is required")
	}

	if c.Audit.RedisAddr != "" && c.Audit.RedisStream == "" {
		return fmt.Errorf("audit.redis_stream is required")
	}

	return nil
}
