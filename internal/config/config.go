package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrReplayExceedsCapacity is returned when more history would be replayed than the buffer can hold.
var ErrReplayExceedsCapacity = errors.New("RELAY_REPLAY_LIMIT exceeds RELAY_BUFFER_CAPACITY")

// Config holds all configuration for the relay.
type Config struct {
	Addr string `env:"RELAY_ADDR" envDefault:":8080" validate:"required"`

	APIKeys     []string `env:"RELAY_API_KEYS" envSeparator:","`
	APIKeysFile string   `env:"RELAY_API_KEYS_FILE"`

	BufferCapacity      int           `env:"RELAY_BUFFER_CAPACITY" envDefault:"500" validate:"min=1,max=100000"`
	ReplayLimit         int           `env:"RELAY_REPLAY_LIMIT" envDefault:"50" validate:"min=0"`
	DeliveryTimeout     time.Duration `env:"RELAY_DELIVERY_TIMEOUT" envDefault:"5s" validate:"min=0"`
	MaxDeliveryFailures int           `env:"RELAY_MAX_DELIVERY_FAILURES" envDefault:"3" validate:"min=0"`
	SendQueue           int           `env:"RELAY_SEND_QUEUE" envDefault:"256" validate:"min=1"`
	AllowedOrigins      []string      `env:"RELAY_ALLOWED_ORIGINS" envSeparator:","`
	RateLimit           float64       `env:"RELAY_RATE_LIMIT" envDefault:"20" validate:"gt=0"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"debug" validate:"oneof=debug info warn error"`

	Tracing TracingConfig
}

// TracingConfig controls OpenTelemetry export of bus spans.
type TracingConfig struct {
	Enabled     bool   `env:"PUBSUB_TRACING_ENABLED" envDefault:"false"`
	ServiceName string `env:"PUBSUB_TRACING_SERVICE_NAME" envDefault:"liverelay"`
	ZipkinURL   string `env:"PUBSUB_TRACING_ZIPKIN_URL" envDefault:"http://localhost:9411/api/v2/spans" validate:"omitempty,url"`
}

// New loads configuration from a .env file, if present, and the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv parses and validates the process environment without touching .env.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.ReplayLimit > c.BufferCapacity {
		return fmt.Errorf("%w (%d > %d)", ErrReplayExceedsCapacity, c.ReplayLimit, c.BufferCapacity)
	}
	return nil
}
