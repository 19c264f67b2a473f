// Package config loads relay configuration: YAML file, environment variable
// overrides, then validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration parsed from YAML with
// GEMINI_RELAY_* environment overrides applied on top.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Relay     RelayConfig     `yaml:"relay"`
	Providers ProvidersConfig `yaml:"providers"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port" env:"GEMINI_RELAY_PORT" validate:"required,gte=1,lte=65535"`
}

// RelayConfig tunes the protocol adapter itself.
type RelayConfig struct {
	// StreamModel is the fixed model name stamped on emulated stream chunks.
	StreamModel string `yaml:"stream_model"`
	// FinishReason is the fixed finish reason reported for every choice.
	FinishReason string `yaml:"finish_reason"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"GEMINI_RELAY_METRICS_ENABLED"`
	Path    string `yaml:"path"`
}

// ProvidersConfig catalogues configured upstream providers.
type ProvidersConfig struct {
	Gemini ProviderConfig `yaml:"gemini"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	APIKey  string            `yaml:"api_key" env:"GEMINI_API_KEY" validate:"required"`
	BaseURL string            `yaml:"base_url" validate:"required,url"`
	Models  []ModelConfig     `yaml:"models" validate:"min=1,dive"`
	Headers Headers           `yaml:"headers"`
	Aliases map[string]string `yaml:"aliases"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// ModelConfig describes a model exposed by a provider.
type ModelConfig struct {
	ID       string `yaml:"id" validate:"required"`
	APIStyle string `yaml:"api_style" validate:"oneof=gemini"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads YAML configuration from disk, applies environment overrides,
// fills defaults, and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment overrides: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Relay.StreamModel == "" {
		c.Relay.StreamModel = "gemini"
	}
	if c.Relay.FinishReason == "" {
		c.Relay.FinishReason = "stop"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate performs structural checks through the validator tags plus the
// semantic checks tags cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gemini := c.Providers.Gemini

	for headerKey := range gemini.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider gemini: header %q is not a valid canonical HTTP header", headerKey)
		}
	}

	for alias, target := range gemini.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("provider gemini: alias name must not be empty")
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("provider gemini: alias %q target must not be empty", alias)
		}
	}

	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
