package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "teamrelay.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/teamrelay"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"

	// EnvAdminID overrides relay.admin_id.
	EnvAdminID = "TEAMRELAY_ADMIN_ID"
	// EnvNATSURL overrides nats.url.
	EnvNATSURL = "TEAMRELAY_NATS_URL"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/teamrelay/config.yaml)
// 3. Project config (teamrelay.yaml in current or parent directories)
// 4. Environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !os.IsNotExist(err) {
		l.logger.Warn("failed to load user config",
			slog.String("path", userConfigPath),
			slog.String("error", err.Error()))
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("failed to load project config",
				slog.String("path", projectConfigPath),
				slog.String("error", err.Error()))
		}
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (l *Loader) applyEnv(config *Config) {
	if v := os.Getenv(EnvAdminID); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Relay.AdminID = id
		} else {
			l.logger.Warn("ignoring non-numeric "+EnvAdminID, slog.String("value", v))
		}
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		config.NATS.URL = v
		config.NATS.Embedded = false
	}
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for teamrelay.yaml in current and parent
// directories.
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
