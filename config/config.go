// Package config provides configuration loading and management for the
// shelter server.
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

// Config represents the complete shelter configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Frontend FrontendConfig `yaml:"frontend"`
	Inquiry  InquiryConfig  `yaml:"inquiry"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `yaml:"addr"`
	// MaxConnections caps concurrent connections (0 = unlimited)
	MaxConnections  int           `yaml:"max_connections"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	// DSN is the SQLite data source name (default: "file:shelter.db")
	DSN string `yaml:"dsn"`
	// BusyTimeout is how long to wait on a locked database
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	// Seed inserts the demo catalogue on startup when the database is empty
	Seed bool `yaml:"seed"`
}

// FrontendConfig configures the served pages
type FrontendConfig struct {
	// Dir holds static files and the templates directory
	Dir string `yaml:"dir"`
	// AppName is exposed to templates
	AppName string `yaml:"app_name"`
	// Watch reloads templates when they change on disk
	Watch bool `yaml:"watch"`
	// Debounce is how long to wait for more changes before reloading
	Debounce time.Duration `yaml:"debounce"`
}

// InquiryConfig configures where accepted contact inquiries are forwarded
type InquiryConfig struct {
	// WebhookURL receives a JSON POST per inquiry (empty = disabled)
	WebhookURL string `yaml:"webhook_url"`
	// WebhookTimeout bounds a single delivery
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	// NATS publishes inquiries on a subject
	NATS NATSConfig `yaml:"nats"`
	// Breaker pauses a failing notifier
	Breaker BreakerConfig `yaml:"breaker"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = disabled)
	URL string `yaml:"url"`
	// Subject is the subject inquiries are published on
	Subject string `yaml:"subject"`
}

// BreakerConfig configures the notifier circuit breaker
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before pausing (0 = disabled)
	FailureThreshold int `yaml:"failure_threshold"`
	// RecoveryTimeout is how long a paused notifier is skipped
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Disabled turns off instrumentation and the /metrics endpoint
	Disabled bool `yaml:"disabled"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:         "file:shelter.db",
			BusyTimeout: 5 * time.Second,
		},
		Frontend: FrontendConfig{
			Dir:      "frontend",
			AppName:  "Ivory Orchid",
			Debounce: 300 * time.Millisecond,
		},
		Inquiry: InquiryConfig{
			WebhookTimeout: 10 * time.Second,
			NATS: NATSConfig{
				Subject: "shelter.inquiry.contact",
			},
			Breaker: BreakerConfig{
				FailureThreshold: 3,
				RecoveryTimeout:  30 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Frontend.Dir == "" {
		return fmt.Errorf("frontend.dir is required")
	}
	if u := strings.TrimSpace(c.Inquiry.WebhookURL); u != "" {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("inquiry.webhook_url must be an http(s) URL")
		}
	}
	if c.Inquiry.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("inquiry.breaker.failure_threshold must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. ${VAR} and
// ${VAR:-default} references are expanded from the environment.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(ExpandEnvWithDefaults(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// loadLayer reads a config file without defaults, so that Merge only
// applies the values the file sets.
func loadLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var layer Config
	if err := yaml.Unmarshal([]byte(ExpandEnvWithDefaults(string(data))), &layer); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &layer, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values).
// Booleans are taken from other only when it enables them.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.MaxConnections != 0 {
		c.Server.MaxConnections = other.Server.MaxConnections
	}
	if other.Server.ReadTimeout != 0 {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != 0 {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}
	if other.Server.IdleTimeout != 0 {
		c.Server.IdleTimeout = other.Server.IdleTimeout
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	// Database
	if other.Database.DSN != "" {
		c.Database.DSN = other.Database.DSN
	}
	if other.Database.BusyTimeout != 0 {
		c.Database.BusyTimeout = other.Database.BusyTimeout
	}
	if other.Database.Seed {
		c.Database.Seed = true
	}

	// Frontend
	if other.Frontend.Dir != "" {
		c.Frontend.Dir = other.Frontend.Dir
	}
	if other.Frontend.AppName != "" {
		c.Frontend.AppName = other.Frontend.AppName
	}
	if other.Frontend.Watch {
		c.Frontend.Watch = true
	}
	if other.Frontend.Debounce != 0 {
		c.Frontend.Debounce = other.Frontend.Debounce
	}

	// Inquiry
	if other.Inquiry.WebhookURL != "" {
		c.Inquiry.WebhookURL = other.Inquiry.WebhookURL
	}
	if other.Inquiry.WebhookTimeout != 0 {
		c.Inquiry.WebhookTimeout = other.Inquiry.WebhookTimeout
	}
	if other.Inquiry.NATS.URL != "" {
		c.Inquiry.NATS.URL = other.Inquiry.NATS.URL
	}
	if other.Inquiry.NATS.Subject != "" {
		c.Inquiry.NATS.Subject = other.Inquiry.NATS.Subject
	}
	if other.Inquiry.Breaker.FailureThreshold != 0 {
		c.Inquiry.Breaker.FailureThreshold = other.Inquiry.Breaker.FailureThreshold
	}
	if other.Inquiry.Breaker.RecoveryTimeout != 0 {
		c.Inquiry.Breaker.RecoveryTimeout = other.Inquiry.Breaker.RecoveryTimeout
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	// Metrics
	if other.Metrics.Disabled {
		c.Metrics.Disabled = true
	}
}
