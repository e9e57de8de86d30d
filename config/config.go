// Package config provides configuration loading and management for feddy.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the hosted feddy service.
const DefaultBaseURL = "https://feddy.app"

// Config represents the complete feddy client configuration
type Config struct {
	// APIKey authenticates every request (required)
	APIKey string `yaml:"api_key"`
	// BaseURL is the service root (default: https://feddy.app)
	BaseURL string `yaml:"base_url"`
	// Debug enables request/response debug logging
	Debug bool `yaml:"debug"`
	// Timeout bounds each HTTP request
	Timeout time.Duration `yaml:"timeout"`
	// CommentCacheTTL is how long a fetched comment page is reused
	CommentCacheTTL time.Duration `yaml:"comment_cache_ttl"`
	// Identity selects where the user identity is persisted
	Identity IdentityConfig `yaml:"identity"`
}

// IdentityConfig configures identity persistence
type IdentityConfig struct {
	// Backend is one of memory, file, sqlite, nats (default: file)
	Backend string `yaml:"backend"`
	// Path is the file or database path for the file and sqlite backends
	Path string `yaml:"path"`
	// NATSURL is the server for the nats backend
	NATSURL string `yaml:"nats_url"`
	// Bucket is the KV bucket for the nats backend
	Bucket string `yaml:"bucket"`
}

var identityBackends = map[string]bool{
	"memory": true,
	"file":   true,
	"sqlite": true,
	"nats":   true,
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         DefaultBaseURL,
		Timeout:         30 * time.Second,
		CommentCacheTTL: time.Minute,
		Identity: IdentityConfig{
			Backend: "file",
			Path:    defaultIdentityPath(),
		},
	}
}

func defaultIdentityPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "feddy-identity.yaml"
	}
	return filepath.Join(home, UserConfigDir, "identity.yaml")
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.CommentCacheTTL < 0 {
		return fmt.Errorf("comment_cache_ttl must not be negative")
	}

	backend := strings.ToLower(c.Identity.Backend)
	if backend == "" {
		backend = "file"
	}
	if !identityBackends[backend] {
		return fmt.Errorf("identity.backend %q is not one of memory, file, sqlite, nats", c.Identity.Backend)
	}
	if (backend == "file" || backend == "sqlite") && c.Identity.Path == "" {
		return fmt.Errorf("identity.path is required for the %s backend", backend)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// readLayer parses a config file without defaults so that only the values it
// sets are merged.
func readLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var layer Config
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &layer, nil
}

// SaveToFile saves configuration to a YAML file.
// The file holds an API key, so it is written owner-readable only.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.APIKey != "" {
		c.APIKey = other.APIKey
	}
	if other.BaseURL != "" {
		c.BaseURL = other.BaseURL
	}
	if other.Debug {
		c.Debug = true
	}
	if other.Timeout != 0 {
		c.Timeout = other.Timeout
	}
	if other.CommentCacheTTL != 0 {
		c.CommentCacheTTL = other.CommentCacheTTL
	}

	// Identity
	if other.Identity.Backend != "" {
		c.Identity.Backend = other.Identity.Backend
	}
	if other.Identity.Path != "" {
		c.Identity.Path = other.Identity.Path
	}
	if other.Identity.NATSURL != "" {
		c.Identity.NATSURL = other.Identity.NATSURL
	}
	if other.Identity.Bucket != "" {
		c.Identity.Bucket = other.Identity.Bucket
	}
}
