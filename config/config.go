// Package config loads the server configuration from a YAML file, applying
// defaults for anything unset. Flags in cmd/server override file values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file; ":memory:" for ephemeral.
	Path string `yaml:"path"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:8080",
			},
		},
		Database: DatabaseConfig{
			Path: "calendar.db",
		},
	}
}

// Load reads the YAML file at path. A missing file is not an error: defaults
// apply. A present but malformed file is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.Normalize()
	return cfg, nil
}

// Normalize fills zero values back in with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = def.Server.AllowedOrigins
	}
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
}
