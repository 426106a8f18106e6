// Package config loads storeledger settings from an optional config file and
// LEDGER_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LEDGER_DATABASE_URL.
const EnvPrefix = "LEDGER"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace"`
	IdempotencyEnabled bool          `mapstructure:"idempotency_enabled"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// RedisConfig holds the catalog cache settings.
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	CatalogTTL time.Duration `mapstructure:"catalog_ttl"`
}

// KafkaConfig holds the outbox relay destination.
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// AuthConfig holds bearer token verification settings. An empty secret
// disables authentication.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LedgerConfig holds business settings.
type LedgerConfig struct {
	TimeZone            string `mapstructure:"timezone"`
	ReceiptCodeAttempts int    `mapstructure:"receipt_code_attempts"`
	AuditCompressAbove  int    `mapstructure:"audit_compress_above"`
}

// WorkerConfig holds background job settings.
type WorkerConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	BatchSize          int           `mapstructure:"batch_size"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
	PublishedRetention time.Duration `mapstructure:"published_retention"`
	// MetricsPort serves /metrics of the worker process; 0 disables it
	MetricsPort int `mapstructure:"metrics_port"`
}

// Location returns the ledger time zone.
func (c LedgerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_grace", 30*time.Second)
	v.SetDefault("server.idempotency_enabled", true)
	v.SetDefault("server.idempotency_ttl", 24*time.Hour)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.migrate_on_start", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.catalog_ttl", 5*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "storeledger")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "storeledger")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("ledger.timezone", "UTC")
	v.SetDefault("ledger.receipt_code_attempts", 3)
	v.SetDefault("ledger.audit_compress_above", 1024)

	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("worker.batch_size", 100)
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.cleanup_interval", 10*time.Minute)
	v.SetDefault("worker.published_retention", 7*24*time.Hour)
	v.SetDefault("worker.metrics_port", 9091)
}

// Load reads configuration with this priority (highest first):
// LEDGER_* environment variables, config.yaml in . or ./config, defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	applyDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Database.MaxConns <= 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, fmt.Errorf("invalid pool sizing: min %d, max %d", c.Database.MinConns, c.Database.MaxConns))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port %d", c.Server.Port))
	}
	if _, err := c.Ledger.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid ledger.timezone %q: %w", c.Ledger.TimeZone, err))
	}
	if c.Ledger.ReceiptCodeAttempts < 1 {
		errs = append(errs, errors.New("ledger.receipt_code_attempts must be at least 1"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Worker.BatchSize <= 0 || c.Worker.MaxAttempts <= 0 {
		errs = append(errs, errors.New("worker.batch_size and worker.max_attempts must be positive"))
	}
	return errors.Join(errs...)
}
