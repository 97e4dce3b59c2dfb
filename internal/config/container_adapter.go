package config

import (
	"github.com/garyjia/barangay-lifecycle/internal/container"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/audit"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Storage: c.Storage.Driver,
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Engine: container.EngineConfig{
			MaxRetries:   c.Engine.MaxRetries,
			RetryBackoff: c.Engine.RetryBackoff,
		},
		Authz: container.AuthzConfig{
			StaffDirectory: c.Authz.StaffDirectory,
			ReloadInterval: c.Authz.ReloadInterval,
		},
		Audit: container.AuditConfig{
			RedisAddr:     c.Audit.RedisAddr,
			RedisPassword: c.Audit.RedisPassword,
			RedisDB:       c.Audit.RedisDB,
			RedisStream:   c.Audit.RedisStream,
			StreamMaxLen:  c.Audit.StreamMaxLen,
			Delivery: audit.DeliveryConfig{
				Buffer:       c.Audit.Buffer,
				MaxAttempts:  c.Audit.MaxAttempts,
				RetryBackoff: c.Audit.RetryBackoff,
				MaxBackoff:   c.Audit.MaxBackoff,
				FlushTimeout: c.Audit.FlushTimeout,
			},
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		MetricsEnabled: c.Metrics.Enabled,
	}
}
