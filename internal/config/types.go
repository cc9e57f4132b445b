// Package config provides configuration loading for netio using Viper.
// Configuration is loaded from YAML files with automatic environment variable binding.
//
// Environment variables use the NETIO_ prefix and underscore-separated keys:
//   - NETIO_LOGGING_LEVEL -> logging.level
//   - NETIO_ADMIN_ENABLED -> admin.enabled
package config

import (
	"os"
	"strings"
)

// ServerConfig contains Transceiver-level defaults.
type ServerConfig struct {
	// ListenBacklog is reported in netiod's startup log line. It is not
	// passed to the TCP listener, which uses the system default backlog.
	ListenBacklog int `yaml:"listen_backlog" mapstructure:"listen_backlog"`
	// CloseTimeout bounds how long netiod waits for Transceiver.Close at
	// shutdown before logging an error and moving on. RemovePort does not
	// use it. A value that is not a positive duration falls back to 5s.
	CloseTimeout string `yaml:"close_timeout" mapstructure:"close_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// AdminConfig contains the optional read-only admin/status API settings.
//
// Note: APIKey is intentionally treated as a secret and should not be returned by API endpoints.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"  mapstructure:"server"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Admin   AdminConfig   `yaml:"admin"   mapstructure:"admin"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("NETIO_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
// This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (NETIO_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
