package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment override, e.g. BARANGAY_SERVER_PORT
const EnvPrefix = "BARANGAY"

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Authz    AuthzConfig    `mapstructure:"authz"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ActorSecret enables verification of gateway-signed actor headers
	ActorSecret  string        `mapstructure:"actor_secret"`
	ActorMaxSkew time.Duration `mapstructure:"actor_max_skew"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// StorageConfig selects the record store
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// EngineConfig tunes the lifecycle engine
type EngineConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// AuthzConfig points at the staff directory
type AuthzConfig struct {
	StaffDirectory string        `mapstructure:"staff_directory"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// AuditConfig configures delivery of committed transitions.
// An empty RedisAddr disables the stream publisher; entries are still logged.
type AuditConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisStream   string        `mapstructure:"redis_stream"`
	StreamMaxLen  int64         `mapstructure:"stream_max_len"`
	Buffer        int           `mapstructure:"buffer"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
}

// MetricsConfig toggles the prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configuration from configPath (optional), a .env file and the environment.
// envFiles default to ".env"; missing files are ignored.
func Load(configPath string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFiles exports variables from each existing file without overriding the environment
func loadEnvFiles(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := gotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.actor_secret", "")
	v.SetDefault("server.actor_max_skew", 5*time.Minute)

	v.SetDefault("database.path", "data/barangay.db")
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.driver", DriverSQLite)

	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.retry_backoff", 50*time.Millisecond)

	v.SetDefault("authz.staff_directory", "configs/staff.yaml")
	v.SetDefault("authz.reload_interval", 30*time.Second)

	v.SetDefault("audit.redis_addr", "")
	v.SetDefault("audit.redis_password", "")
	v.SetDefault("audit.redis_db", 0)
	v.SetDefault("audit.redis_stream", "barangay:transitions")
	v.SetDefault("audit.stream_max_len", 100000)
	v.SetDefault("audit.buffer", 10000)
	v.SetDefault("audit.max_attempts", 0)
	v.SetDefault("audit.retry_backoff", 200*time.Millisecond)
	v.SetDefault("audit.max_backoff", 30*time.Second)
	v.SetDefault("audit.flush_timeout", 5*time.Second)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds short names for deployment secrets
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"audit.redis_addr":      "REDIS_ADDR",
		"audit.redis_password":  "REDIS_PASSWORD",
		"database.path":         "BARANGAY_DB_PATH",
		"authz.staff_directory": "BARANGAY_STAFF_DIRECTORY",
		"server.actor_secret":   "ACTOR_SECRET",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Storage.Driver)
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	if c.Engine.RetryBackoff <= 0 {
		return fmt.Errorf("engine.retry_backoff must be positive")
	}

	if c.Authz.StaffDirectory == "" {
		return fmt.Errorf("authz.staff_directory is required")
	}

	if c.Audit.RedisAddr != "" && c.Audit.RedisStream == "" {
		return fmt.Errorf("audit.redis_stream is required when audit.redis_addr is set")
	}
	if c.Audit.Buffer < 0 || c.Audit.MaxAttempts < 0 {
		return fmt.Errorf("audit.buffer and audit.max_attempts must not be negative")
	}
	if c.Audit.RetryBackoff <= 0 {
		return fmt.Errorf("audit.retry_backoff must be positive")
	}

	return nil
}
