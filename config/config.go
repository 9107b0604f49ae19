// Package config provides configuration loading and management for the
// team relay.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the complete relay configuration.
type Config struct {
	Relay   RelayConfig   `yaml:"relay"`
	NATS    NATSConfig    `yaml:"nats"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// RelayConfig configures routing behavior.
type RelayConfig struct {
	// AdminID is the privileged identity: the only sender allowed to use
	// the -id trigger, the anonymous-feedback disclosure target, and
	// always an administrator.
	AdminID int64 `yaml:"admin_id"`

	// Coordinators are the roles allowed to use specific-team triggers.
	Coordinators []string `yaml:"coordinators"`

	// AllowSelfSend permits direct-to-user targets that resolve to the
	// sender.
	AllowSelfSend bool `yaml:"allow_self_send"`

	// RolesFile is the JSON role directory path.
	RolesFile string `yaml:"roles_file"`

	// PolicyFile is the YAML routing-table path. Empty uses the shipped
	// defaults.
	PolicyFile string `yaml:"policy_file"`

	// WatchRoles reloads the role file when it changes on disk.
	WatchRoles bool `yaml:"watch_roles"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server).
	URL string `yaml:"url"`
	// Embedded indicates whether to run an embedded NATS server.
	Embedded bool `yaml:"embedded"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Coordinators:  []string{"group-admin", "group-assistant"},
			AllowSelfSend: false,
			RolesFile:     "roles.json",
			WatchRoles:    true,
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9611",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Relay.AdminID == 0 {
		return fmt.Errorf("relay.admin_id is required")
	}
	if c.Relay.RolesFile == "" {
		return fmt.Errorf("relay.roles_file is required")
	}
	if c.NATS.URL == "" && !c.NATS.Embedded {
		return fmt.Errorf("nats.url is required when nats.embedded is false")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// Merge overlays non-zero fields of other onto c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Relay.AdminID != 0 {
		c.Relay.AdminID = other.Relay.AdminID
	}
	if len(other.Relay.Coordinators) > 0 {
		c.Relay.Coordinators = other.Relay.Coordinators
	}
	if other.Relay.AllowSelfSend {
		c.Relay.AllowSelfSend = true
	}
	if other.Relay.RolesFile != "" {
		c.Relay.RolesFile = other.Relay.RolesFile
	}
	if other.Relay.PolicyFile != "" {
		c.Relay.PolicyFile = other.Relay.PolicyFile
	}
	if other.Relay.WatchRoles {
		c.Relay.WatchRoles = true
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = other.NATS.Embedded
	}
	if other.Metrics.Addr != "" {
		c.Metrics = other.Metrics
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}

// LoadFromFile loads configuration from a YAML file layered over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile writes the configuration as YAML, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
