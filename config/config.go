// Package config loads the pricewatch YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pricewatch/messaging"
)

// Config holds the full pricewatch configuration.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`
	// AdminUserID is the chat user id allowed to issue slash commands in
	// private chat. Zero disables the command surface.
	AdminUserID int64 `yaml:"admin_user_id"`
	// DestinationChatID is where detected deals are forwarded. Zero
	// disables forwarding; detection and persistence still run.
	DestinationChatID int64 `yaml:"destination_chat_id"`

	Webhook messaging.WebhookConfig `yaml:"webhook"`
	API     APIConfig               `yaml:"api"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// WatchIntervalSeconds is how often the database is polled for
	// out-of-band changes. Zero disables the watcher.
	WatchIntervalSeconds int `yaml:"watch_interval_seconds"`
}

// APIConfig configures the HTTP admin/read API.
type APIConfig struct {
	// Listen is the bind address. Empty disables the API server.
	Listen string `yaml:"listen"`
	// User and PasswordHash (bcrypt) protect /api routes with basic auth.
	// An empty hash leaves the API open; only do that on loopback.
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath: "pricewatch.db",
		Webhook: messaging.WebhookConfig{
			ListenAddr: ":8086",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8087",
		},
		LogLevel:             "info",
		WatchIntervalSeconds: 5,
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Webhook.ListenAddr == "" {
		return fmt.Errorf("webhook.listen_addr is required")
	}
	if c.WatchIntervalSeconds < 0 {
		return fmt.Errorf("watch_interval_seconds must be >= 0")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level %q (use debug, info, warn or error)", c.LogLevel)
	}
	if c.API.Listen != "" && c.API.PasswordHash != "" && c.API.User == "" {
		return fmt.Errorf("api.user is required when api.password_hash is set")
	}
	return nil
}
