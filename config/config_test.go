package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Database.DSN != "file:shelter.db" {
		t.Errorf("expected default dsn file:shelter.db, got %s", cfg.Database.DSN)
	}
	if cfg.Frontend.Dir != "frontend" {
		t.Errorf("expected default frontend dir, got %s", cfg.Frontend.Dir)
	}
	if cfg.Inquiry.NATS.Subject != "shelter.inquiry.contact" {
		t.Errorf("unexpected default subject %s", cfg.Inquiry.NATS.Subject)
	}
	if cfg.Inquiry.WebhookURL != "" {
		t.Error("expected webhook disabled by default")
	}
	if cfg.Metrics.Disabled {
		t.Error("expected metrics enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing addr",
			modify:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
		},
		{
			name:    "negative max connections",
			modify:  func(c *Config) { c.Server.MaxConnections = -1 },
			wantErr: true,
		},
		{
			name:    "missing dsn",
			modify:  func(c *Config) { c.Database.DSN = "" },
			wantErr: true,
		},
		{
			name:    "missing frontend dir",
			modify:  func(c *Config) { c.Frontend.Dir = "" },
			wantErr: true,
		},
		{
			name:    "valid webhook",
			modify:  func(c *Config) { c.Inquiry.WebhookURL = "https://hooks.example.com/inquiry" },
			wantErr: false,
		},
		{
			name:    "webhook without scheme",
			modify:  func(c *Config) { c.Inquiry.WebhookURL = "hooks.example.com/inquiry" },
			wantErr: true,
		},
		{
			name:    "blank webhook is disabled",
			modify:  func(c *Config) { c.Inquiry.WebhookURL = "   " },
			wantErr: false,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	t.Setenv("TEST_SHELTER_HOOK", "https://hooks.example.com/x")

	content := `
server:
  addr: "127.0.0.1:9090"
  max_connections: 64
  read_timeout: 5s
database:
  dsn: "file:/var/lib/shelter/shelter.db"
  seed: true
inquiry:
  webhook_url: "${TEST_SHELTER_HOOK}"
  nats:
    url: "${TEST_SHELTER_NATS:-nats://localhost:4222}"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("expected addr 127.0.0.1:9090, got %s", cfg.Server.Addr)
	}
	if cfg.Server.MaxConnections != 64 {
		t.Errorf("expected max_connections 64, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected read timeout 5s, got %v", cfg.Server.ReadTimeout)
	}
	if !cfg.Database.Seed {
		t.Error("expected seed enabled")
	}
	if cfg.Inquiry.WebhookURL != "https://hooks.example.com/x" {
		t.Errorf("expected expanded webhook, got %s", cfg.Inquiry.WebhookURL)
	}
	if cfg.Inquiry.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS url, got %s", cfg.Inquiry.NATS.URL)
	}
	// Defaults survive for unset values
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.Addr = ":9999"
	cfg.Inquiry.Breaker.RecoveryTimeout = time.Minute
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Server.Addr != ":9999" {
		t.Errorf("expected addr :9999, got %s", loaded.Server.Addr)
	}
	if loaded.Inquiry.Breaker.RecoveryTimeout != time.Minute {
		t.Errorf("expected recovery timeout 1m, got %v", loaded.Inquiry.Breaker.RecoveryTimeout)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{
		Database: DatabaseConfig{DSN: "file:other.db"},
		Frontend: FrontendConfig{Watch: true},
		Inquiry:  InquiryConfig{NATS: NATSConfig{URL: "nats://broker:4222"}},
		Metrics:  MetricsConfig{Disabled: true},
	})

	if base.Database.DSN != "file:other.db" {
		t.Errorf("expected merged dsn, got %s", base.Database.DSN)
	}
	if !base.Frontend.Watch {
		t.Error("expected watch enabled")
	}
	if base.Inquiry.NATS.URL != "nats://broker:4222" {
		t.Errorf("expected merged NATS url, got %s", base.Inquiry.NATS.URL)
	}
	if base.Inquiry.NATS.Subject != "shelter.inquiry.contact" {
		t.Errorf("zero values must not override, got subject %q", base.Inquiry.NATS.Subject)
	}
	if !base.Metrics.Disabled {
		t.Error("expected metrics disabled")
	}
	if base.Server.Addr != ":8080" {
		t.Errorf("expected addr unchanged, got %s", base.Server.Addr)
	}

	base.Merge(nil)
}

func TestExpandEnvWithDefaults(t *testing.T) {
	t.Setenv("TEST_SHELTER_SET", "value")
	t.Setenv("TEST_SHELTER_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${TEST_SHELTER_SET}", "value"},
		{"$TEST_SHELTER_SET", "value"},
		{"${TEST_SHELTER_UNSET}", ""},
		{"${TEST_SHELTER_UNSET:-fallback}", "fallback"},
		{"${TEST_SHELTER_EMPTY:-fallback}", "fallback"},
		{"${TEST_SHELTER_SET:-fallback}", "value"},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		if got := ExpandEnvWithDefaults(tt.in); got != tt.want {
			t.Errorf("ExpandEnvWithDefaults(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newTestLoader(t *testing.T, home, cwd string, env map[string]string) *Loader {
	t.Helper()
	l := NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.homeDir = func() (string, error) { return home, nil }
	l.workDir = func() (string, error) { return cwd, nil }
	l.getenv = func(k string) string { return env[k] }
	return l
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoader_Layers(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	cwd := filepath.Join(project, "sub", "dir")
	if err := os.MkdirAll(cwd, 0755); err != nil {
		t.Fatal(err)
	}

	writeConfig(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
server:
  addr: ":7000"
log:
  level: debug
`)
	writeConfig(t, filepath.Join(project, ProjectConfigFile), `
server:
  addr: ":7100"
frontend:
  dir: ./web
`)

	l := newTestLoader(t, home, cwd, map[string]string{
		EnvDatabaseDSN: ":memory:",
		EnvWebhook:     "  ",
	})
	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":7100" {
		t.Errorf("project config should override user config, got %s", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("user config value should survive, got %s", cfg.Log.Level)
	}
	if cfg.Frontend.Dir != "./web" {
		t.Errorf("expected project frontend dir, got %s", cfg.Frontend.Dir)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("env should override dsn, got %s", cfg.Database.DSN)
	}
	if cfg.Inquiry.WebhookURL != "" {
		t.Errorf("blank env webhook should be ignored, got %q", cfg.Inquiry.WebhookURL)
	}
}

func TestLoader_ExplicitPath(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "custom.yaml")
	writeConfig(t, explicit, "server:\n  addr: \":7200\"\n")

	l := newTestLoader(t, t.TempDir(), t.TempDir(), map[string]string{EnvAddr: ":7300"})
	cfg, err := l.Load(explicit)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":7300" {
		t.Errorf("env should win over explicit file, got %s", cfg.Server.Addr)
	}

	if _, err := l.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoader_InvalidResult(t *testing.T) {
	l := newTestLoader(t, t.TempDir(), t.TempDir(), map[string]string{EnvLogLevel: "loud"})
	if _, err := l.Load(""); err == nil {
		t.Error("expected validation error")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	home := t.TempDir()
	l := newTestLoader(t, home, t.TempDir(), nil)

	if err := l.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	path := filepath.Join(home, UserConfigDir, UserConfigFile)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected user config at %s: %v", path, err)
	}
	// Second call leaves the file alone
	if err := l.EnsureUserConfig(); err != nil {
		t.Errorf("second EnsureUserConfig() error = %v", err)
	}
}
