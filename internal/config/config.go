// Package config loads the application configuration from environment
// variables layered over an optional YAML file, with env taking
// precedence. Configuration is validated once at load time.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// FAULTGATE_SERVER_PORT.
const EnvPrefix = "FAULTGATE"

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Dispatch DispatchConfig `yaml:"dispatch" envconfig:"DISPATCH"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Feed     FeedConfig     `yaml:"feed" envconfig:"FEED"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/faultgate.log"`
}

// DispatchConfig controls the fault dispatch guard.
type DispatchConfig struct {
	// Debug exposes handler names, URLs and stack traces in responses.
	Debug bool `yaml:"debug" envconfig:"DEBUG" default:"false"`
	// Fallback is the default-path render format; "auto" negotiates on
	// the Accept header.
	Fallback string `yaml:"fallback" envconfig:"FALLBACK" default:"auto" validate:"oneof=auto html text json"`
	// NoisyExceptions forces logging of quiet faults.
	NoisyExceptions bool `yaml:"noisy_exceptions" envconfig:"NOISY_EXCEPTIONS" default:"false"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50" validate:"gte=0"`
}

// FeedConfig contains fault feed WebSocket settings.
type FeedConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"54s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// Load loads configuration from the environment and the optional config
// file named by FAULTGATE_CONFIG_FILE (default "config.yaml" when
// present). Environment values take precedence over file values.
func Load() (*Config, error) {
	configFile := os.Getenv(EnvPrefix + "_CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	var cfg Config
	if _, err := os.Stat(configFile); err == nil {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
		}
	}

	// Env overrides file values; envconfig defaults fill whatever is
	// still zero.
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Default returns the built-in configuration, useful for tests.
func Default() *Config {
	var cfg Config
	if err := envconfig.Process("FAULTGATE_DEFAULTS_ONLY", &cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}
