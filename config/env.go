package config

import (
	"os"
	"strings"
)

// Environment variables that override file configuration.
const (
	EnvAddr        = "SHELTER_ADDR"
	EnvDatabaseDSN = "SHELTER_DATABASE_DSN"
	EnvFrontendDir = "SHELTER_FRONTEND_DIR"
	EnvWebhook     = "INQUIRY_WEBHOOK"
	EnvNATSURL     = "SHELTER_NATS_URL"
	EnvLogLevel    = "SHELTER_LOG_LEVEL"
)

// EnvOverrides returns a config layer holding the values set in the
// environment. Blank values are ignored.
func EnvOverrides(getenv func(string) string) *Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	var c Config
	c.Server.Addr = get(EnvAddr)
	c.Database.DSN = get(EnvDatabaseDSN)
	c.Frontend.Dir = get(EnvFrontendDir)
	c.Inquiry.WebhookURL = get(EnvWebhook)
	c.Inquiry.NATS.URL = get(EnvNATSURL)
	c.Log.Level = get(EnvLogLevel)
	return &c
}

// ExpandEnvWithDefaults replaces ${VAR} and $VAR with environment values.
// ${VAR:-default} yields default when VAR is unset or empty.
func ExpandEnvWithDefaults(s string) string {
	return os.Expand(s, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" || !hasDefault {
			return v
		}
		return def
	})
}
