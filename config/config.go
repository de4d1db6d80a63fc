// Package config loads the relay.yml daemon configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/grovetools/relay/pkg/paths"
	"gopkg.in/yaml.v3"
)

// EngineConfig configures the agent execution engine subprocess.
type EngineConfig struct {
	// Command is the engine binary to invoke.
	Command string `yaml:"command"`
	// MaxBufferMB caps the line scanner buffer when reading the engine's
	// event stream. Bounds memory for pathologically large single events.
	MaxBufferMB int `yaml:"max_buffer_mb"`
}

// Config holds the daemon configuration.
type Config struct {
	Host      string       `yaml:"host"`
	Port      int          `yaml:"port"`
	DBPath    string       `yaml:"db_path"`
	AuthToken string       `yaml:"auth_token"`
	LogLevel  string       `yaml:"log_level"`
	Engine    EngineConfig `yaml:"engine"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Host:     "127.0.0.1",
		Port:     8420,
		DBPath:   paths.DatabasePath(),
		LogLevel: "info",
		Engine: EngineConfig{
			Command:     "claude",
			MaxBufferMB: 100,
		},
	}
}

// Load reads the config file at path, merging over defaults and then applying
// RELAY_* environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFromBytes parses a config from raw YAML, merging over defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads the config from the standard location.
func LoadDefault() (*Config, error) {
	return Load(paths.ConfigFilePath())
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RELAY_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("RELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("RELAY_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("RELAY_AUTH_TOKEN"); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RELAY_ENGINE_COMMAND"); v != "" {
		c.Engine.Command = v
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
