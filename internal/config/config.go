package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds client settings
type Config struct {
	ServerURL string `yaml:"server_url" json:"server_url"` // Backend base URL
	Token     string `yaml:"token" json:"-"`               // Session token issued by the backend
	TeamID    string `yaml:"team_id" json:"team_id"`       // Team shown by default
	CachePath string `yaml:"cache_path" json:"cache_path"` // SQLite snapshot location, "off" disables

	// Logging configuration
	LogLevel   string `yaml:"log_level" json:"log_level"`     // Log level: DEBUG, INFO, WARN, ERROR
	LogFile    string `yaml:"log_file" json:"log_file"`       // Path to log file
	LogConsole bool   `yaml:"log_console" json:"log_console"` // Enable console logging

	path string
}

// Dir returns the settings directory (~/.ironsync)
func Dir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return ".ironsync"
	}
	return filepath.Join(home, ".ironsync")
}

// DefaultPath returns ~/.ironsync/config.yaml
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns default settings
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		ServerURL:  getEnv("IRONSYNC_SERVER", "http://localhost:8080"),
		TeamID:     getEnv("IRONSYNC_TEAM", ""),
		CachePath:  getEnv("IRONSYNC_CACHE", filepath.Join(dir, "cache.db")),
		LogLevel:   getEnv("IRONSYNC_LOG_LEVEL", "INFO"),
		LogFile:    getEnv("IRONSYNC_LOG_FILE", filepath.Join(dir, "logs", "ironsync.log")),
		LogConsole: getEnv("IRONSYNC_LOG_CONSOLE", "false") == "true",
		path:       DefaultPath(),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load loads config from the default path
func Load() (*Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom loads config from path. A missing file yields the defaults.
// IRONSYNC_TOKEN, when set, wins over the stored token.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if token := os.Getenv("IRONSYNC_TOKEN"); token != "" {
		cfg.Token = token
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings that would fail later in less obvious ways
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server_url %q: expected http(s)://host[:port]", c.ServerURL)
	}
	return nil
}

// RealtimeURL is the websocket endpoint derived from ServerURL
func (c *Config) RealtimeURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/realtime"
	return u.String()
}

// CacheEnabled reports whether a local snapshot should be kept
func (c *Config) CacheEnabled() bool {
	return c.CachePath != "" && c.CachePath != "off"
}

// Path is the file Save writes to
func (c *Config) Path() string {
	return c.path
}

// Save writes the config back to the file it was loaded from. The file holds
// the session token, so it is private to the user.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
