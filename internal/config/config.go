// Package config loads application configuration from an optional YAML file
// overlaid with CONSULTQ_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CONSULTQ_"

// Config is the application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	CORS      CORSConfig      `koanf:"cors"`
	JWT       JWTConfig       `koanf:"jwt"`
	Queue     QueueConfig     `koanf:"queue"`
	Payments  PaymentsConfig  `koanf:"payments"`
	Events    EventsConfig    `koanf:"events"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"required,min=1,max=65535"`
	MetricsPort       int           `koanf:"metrics_port" validate:"required,min=1,max=65535"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	MigrationsPath  string        `koanf:"migrations_path"`
	RunMigrations   bool          `koanf:"run_migrations"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// JWTConfig contains access token settings.
type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key" validate:"required,min=32"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// QueueConfig contains queue engine settings.
type QueueConfig struct {
	MaxWait       time.Duration `koanf:"max_wait" validate:"required"`
	WindowLead    time.Duration `koanf:"window_lead" validate:"required"`
	WindowGrace   time.Duration `koanf:"window_grace" validate:"required"`
	DailyQuota    int           `koanf:"daily_quota" validate:"min=1"`
	MonthlyQuota  int           `koanf:"monthly_quota" validate:"min=1"`
	MaxCandidates int           `koanf:"max_candidates" validate:"min=1"`
}

// PaymentsConfig contains payment gate settings.
type PaymentsConfig struct {
	Window time.Duration `koanf:"window" validate:"required"`
}

// EventsConfig contains event delivery worker settings.
type EventsConfig struct {
	Worker WorkerConfig `koanf:"worker"`
	Retry  RetryConfig  `koanf:"retry"`
}

// WorkerConfig contains outbox worker settings.
type WorkerConfig struct {
	BatchSize    int           `koanf:"batch_size" validate:"min=1"`
	PollInterval time.Duration `koanf:"poll_interval"`
	NumWorkers   int           `koanf:"num_workers" validate:"min=1"`
}

// RetryConfig contains delivery retry settings.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts" validate:"min=1"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// RateLimitConfig contains per-actor request limits.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			MetricsPort:       9090,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectAttempts: 5,
			ConnectTimeout:  30 * time.Second,
			MigrationsPath:  "migrations",
			RunMigrations:   true,
		},
		JWT: JWTConfig{
			AccessTokenDuration: 15 * time.Minute,
		},
		Queue: QueueConfig{
			MaxWait:       30 * time.Minute,
			WindowLead:    15 * time.Minute,
			WindowGrace:   10 * time.Minute,
			DailyQuota:    3,
			MonthlyQuota:  10,
			MaxCandidates: 5,
		},
		Payments: PaymentsConfig{
			Window: 15 * time.Minute,
		},
		Events: EventsConfig{
			Worker: WorkerConfig{
				BatchSize:    100,
				PollInterval: 2 * time.Second,
				NumWorkers:   2,
			},
			Retry: RetryConfig{
				MaxAttempts:       5,
				InitialBackoff:    1 * time.Second,
				MaxBackoff:        2 * time.Minute,
				BackoffMultiplier: 2.0,
			},
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
	}
}

// Load reads configuration from the given YAML file (optional, may be empty)
// and the environment, on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Double underscore nests: CONSULTQ_SERVER__METRICS_PORT -> server.metrics_port
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
