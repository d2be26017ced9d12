package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for both the api and worker binaries.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration for cmd/api.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// RedisConfig holds connection configuration for the event bus and the
// distributed locks used by discovery and the runtime matcher.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// VaultConfig holds optional HashiCorp Vault configuration. When URL and
// Token are both set, DB/Redis secrets are loaded from Vault at boot and
// override the values above (see internal/secrets).
type VaultConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// DetectionConfig holds the tunable constants of the discovery pipeline and
// runtime matcher (spec.md §4.2-§4.5). Defaults match the spec's stated
// thresholds; they are exposed so operators can retune without a redeploy.
type DetectionConfig struct {
	MinGroupSize           int     `mapstructure:"min_group_size"`
	AmountRelativeTolerance float64 `mapstructure:"amount_relative_tolerance"`
	AmountAbsoluteTolerance float64 `mapstructure:"amount_absolute_tolerance"`
	MinConfidence          float64 `mapstructure:"min_confidence"`
	MaxMissSweepCycles     int     `mapstructure:"max_miss_sweep_cycles"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from built-in defaults, a config.yaml in
// ./config, /app/config or the working directory, and environment
// variables, in that order of increasing precedence, following the
// teacher's viper-based loader.
func Load() (*Config, error) {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "0.0.0.0")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "recurring_engine")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.ssl_mode", "disable")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("detection.min_group_size", 3)
	viper.SetDefault("detection.amount_relative_tolerance", 0.25)
	viper.SetDefault("detection.amount_absolute_tolerance", 50.0)
	viper.SetDefault("detection.min_confidence", 0.40)
	viper.SetDefault("detection.max_miss_sweep_cycles", 6)

	viper.SetDefault("log.level", "info")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app/config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	for env, key := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

var envBindings = map[string]string{
	"SERVER_PORT":       "server.port",
	"SERVER_HOST":       "server.host",
	"DATABASE_HOST":     "database.host",
	"DATABASE_PORT":     "database.port",
	"DATABASE_NAME":     "database.name",
	"DATABASE_USER":     "database.user",
	"DATABASE_PASSWORD": "database.password",
	"DATABASE_SSL_MODE": "database.ssl_mode",
	"REDIS_ADDR":        "redis.addr",
	"REDIS_PASSWORD":    "redis.password",
	"VAULT_URL":         "vault.url",
	"VAULT_TOKEN":       "vault.token",
	"LOG_LEVEL":         "log.level",
}

// DSN builds a Postgres connection string from the database configuration.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode,
	)
}
