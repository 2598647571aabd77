// Package config loads service configuration from a YAML file and the
// environment, with validated defaults.
package config

import (
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/circuitd/circuitd/internal/circuit"
)

// Deployment environments.
const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

// Log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	// Backend selects where circuit state and events are persisted.
	Backend string `mapstructure:"backend"`

	// RedisAddr is the host:port of the Redis backend.
	RedisAddr string `mapstructure:"redis_addr"`
}

type AuthConfig struct {
	// SigningKey signs admin API bearer tokens.
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
	Audience   string `mapstructure:"audience"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type PubSubConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Breaker   circuit.Config  `mapstructure:"breaker"`
}

// Load reads config.yaml (if present) merged with CIRCUITD_* environment
// variables over built-in defaults, then validates the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic", "circuit-events")
	v.SetDefault("pubsub.subscription", "circuit-events-archiver")
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.timeout", 60*time.Second)
	v.SetDefault("breaker.monitoring_period", 60*time.Second)
	v.SetDefault("breaker.volume_threshold", 0)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("circuitd")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file is fine: defaults plus environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Address, validation.Required, validation.By(validateHostPort)),
		validation.Field(&c.Server.Environment, validation.Required, validation.In(EnvDev, EnvStaging, EnvProd)),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Logging,
		validation.Field(&c.Logging.Level, validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError)),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Store,
		validation.Field(&c.Store.Backend, validation.Required,
			validation.In(StoreMemory, StorePostgres, StoreRedis)),
	); err != nil {
		return err
	}
	if c.Store.Backend == StoreRedis {
		if err := validation.Validate(c.Store.RedisAddr, validation.Required, validation.By(validateHostPort)); err != nil {
			return err
		}
	}

	if c.PubSub.Enabled {
		if err := validation.ValidateStruct(&c.PubSub,
			validation.Field(&c.PubSub.ProjectID, validation.Required),
			validation.Field(&c.PubSub.Topic, validation.Required),
		); err != nil {
			return err
		}
	}

	return c.Breaker.Validate()
}

func validateHostPort(value interface{}) error {
	s, _ := value.(string)
	if _, _, err := net.SplitHostPort(s); err != nil {
		return validation.NewError("validation_host_port", "must be a host:port address")
	}
	return nil
}
