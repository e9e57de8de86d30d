package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "feddy.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/feddy"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables that override file configuration.
const (
	EnvAPIKey  = "FEDDY_API_KEY"
	EnvBaseURL = "FEDDY_BASE_URL"
	EnvDebug   = "FEDDY_DEBUG"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/feddy/config.yaml)
// 3. Project config (feddy.yaml in current or parent directories)
// 4. Environment variables (FEDDY_API_KEY, FEDDY_BASE_URL, FEDDY_DEBUG)
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.UserConfigPath()
	if userConfig, err := readLayer(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !os.IsNotExist(err) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := readLayer(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFile loads defaults, the given file and the environment, skipping the
// user and project search. Used when a config path is given explicitly.
func (l *Loader) LoadFile(path string) (*Config, error) {
	config := DefaultConfig()

	layer, err := readLayer(path)
	if err != nil {
		return nil, err
	}
	config.Merge(layer)
	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig writes cfg as the user config file if it doesn't exist.
// It reports whether a file was created.
func (l *Loader) EnsureUserConfig(cfg *Config) (bool, error) {
	userConfigPath := l.UserConfigPath()

	if _, err := os.Stat(userConfigPath); err == nil {
		return false, nil
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.SaveToFile(userConfigPath); err != nil {
		return false, err
	}

	l.logger.Info("Created user config", slog.String("path", userConfigPath))
	return true, nil
}

// UserConfigPath returns the path to the user config file
func (l *Loader) UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

func (l *Loader) applyEnv(config *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		config.APIKey = v
		l.logger.Debug("API key taken from environment")
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		config.BaseURL = v
		l.logger.Debug("Base URL taken from environment", slog.String("base_url", v))
	}
	if v := os.Getenv(EnvDebug); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			config.Debug = debug
		} else {
			l.logger.Warn("Ignoring invalid FEDDY_DEBUG", slog.String("value", v))
		}
	}
}

// findProjectConfig searches for feddy.yaml in current and parent directories
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
