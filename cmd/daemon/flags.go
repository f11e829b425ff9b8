package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Disable     string // comma-separated component names
	ShowVersion bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("DAEMON_CONFIG", ""),
		"Path to configuration file, JSON or YAML (env: DAEMON_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("DAEMON_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; overrides config (env: DAEMON_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("DAEMON_LOG_FORMAT", "json"),
		"Log format: json, text (env: DAEMON_LOG_FORMAT)")

	flag.StringVar(&cfg.Disable, "disable",
		getEnv("DAEMON_DISABLE", ""),
		"Comma-separated component names to skip (env: DAEMON_DISABLE)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	return nil
}

// disabledComponents splits the -disable flag into component names.
func (c *CLIConfig) disabledComponents() []string {
	if c.Disable == "" {
		return nil
	}
	parts := strings.Split(c.Disable, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
