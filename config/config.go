// Package config loads and validates the daemon configuration. Files may
// be JSON or YAML; the format is chosen by file extension.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lbryio/lbry-sdk-sub001/errors"
)

// Config represents the complete daemon configuration.
type Config struct {
	LogLevel        string   `json:"log_level" yaml:"log_level"`
	ShutdownTimeout int      `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
	Disabled        []string `json:"disabled_components" yaml:"disabled_components"`

	NATS    NATSConfig    `json:"nats" yaml:"nats"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
}

// NATSConfig configures the messaging bus connection.
type NATSConfig struct {
	URL            string `json:"url" yaml:"url"`
	ConnectTimeout int    `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
	MaxReconnects  int    `json:"max_reconnects" yaml:"max_reconnects"`
}

// StoreConfig configures the key/value store component.
type StoreConfig struct {
	Bucket string `json:"bucket" yaml:"bucket"`
}

// GatewayConfig configures the HTTP gateway component.
type GatewayConfig struct {
	Addr      string  `json:"addr" yaml:"addr"`
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"` // requests per second
	RateBurst int     `json:"rate_burst" yaml:"rate_burst"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		ShutdownTimeout: 30,
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			ConnectTimeout: 10,
			MaxReconnects:  -1,
		},
		Store: StoreConfig{
			Bucket: "daemon-state",
		},
		Gateway: GatewayConfig{
			Addr:      "127.0.0.1:5279",
			RateLimit: 50,
			RateBurst: 100,
		},
	}
}

// Load reads a configuration file over the defaults. YAML is selected for
// .yaml/.yml extensions, JSON otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-provided
	if err != nil {
		return nil, errors.Wrap(err, "Config", "Load", "config file read")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "config file parse")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot start
// with. Component-name problems (a disabled name that matches nothing)
// are caught later by the manager, which owns the registered set.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: log_level %q", errors.ErrInvalidConfig, c.LogLevel),
			"Config", "Validate", "log level check")
	}

	if c.ShutdownTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: shutdown_timeout_seconds must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "shutdown timeout check")
	}

	if c.NATS.URL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nats.url", errors.ErrMissingConfig),
			"Config", "Validate", "nats url check")
	}
	if c.NATS.ConnectTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nats.connect_timeout_seconds must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "nats timeout check")
	}

	if c.Store.Bucket == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: store.bucket", errors.ErrMissingConfig),
			"Config", "Validate", "store bucket check")
	}

	if c.Gateway.Addr == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: gateway.addr", errors.ErrMissingConfig),
			"Config", "Validate", "gateway addr check")
	}
	if c.Gateway.RateLimit <= 0 || c.Gateway.RateBurst <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: gateway rate limit and burst must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "gateway rate limit check")
	}

	return nil
}
