package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/shelter/config"
	"github.com/c360studio/shelter/notify"
	"github.com/c360studio/shelter/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	frontend := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(frontend, "templates"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(frontend, "templates", "index.html"),
		[]byte(`<h1>{{.AppName}}</h1>`), 0644))

	cfg := config.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Database.DSN = storage.MemoryDSN
	cfg.Database.Seed = true
	cfg.Frontend.Dir = frontend
	cfg.Frontend.AppName = "Test Shelter"
	return cfg
}

func TestAppServesUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Frontend.Watch = true
	cfg.Frontend.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := NewApp(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer app.Close()
	require.NotNil(t, app.watcher)
	require.NotNil(t, app.registry)

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.server.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	base := "http://" + app.server.Addr()
	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()

	resp, err := client.Get(base + "/api/pets")
	require.NoError(t, err)
	var pets []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pets))
	resp.Body.Close()
	assert.Len(t, pets, storage.DemoPetCount)

	resp, err = client.Get(base + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "<h1>Test Shelter</h1>", string(body))

	resp, err = client.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestAppMetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Disabled = true

	app, err := NewApp(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.registry)
	assert.Nil(t, app.metrics)
	assert.Nil(t, app.watcher)
}

func TestBuildNotifier(t *testing.T) {
	logger := quietLogger()

	t.Run("nothing configured", func(t *testing.T) {
		n, err := buildNotifier(config.InquiryConfig{}, logger)
		require.NoError(t, err)
		assert.IsType(t, notify.Nop{}, n)
	})

	t.Run("webhook behind breaker", func(t *testing.T) {
		cfg := config.DefaultConfig().Inquiry
		cfg.WebhookURL = "http://127.0.0.1:9/hook"
		n, err := buildNotifier(cfg, logger)
		require.NoError(t, err)
		defer n.Close()
		assert.IsType(t, &notify.Breaker{}, n)
	})

	t.Run("breaker disabled", func(t *testing.T) {
		cfg := config.DefaultConfig().Inquiry
		cfg.WebhookURL = "http://127.0.0.1:9/hook"
		cfg.Breaker.FailureThreshold = 0
		n, err := buildNotifier(cfg, logger)
		require.NoError(t, err)
		defer n.Close()
		assert.IsType(t, &notify.WebhookNotifier{}, n)
	})

	t.Run("unreachable nats", func(t *testing.T) {
		cfg := config.DefaultConfig().Inquiry
		cfg.NATS.URL = "nats://127.0.0.1:1"
		_, err := buildNotifier(cfg, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NATS connection failed")
	})
}

func TestNewApp_BadFrontendReleasesStore(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Frontend.Dir, "templates", "broken.html"),
		[]byte(`{{if}}`), 0644))

	_, err := NewApp(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load frontend")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger("debug", "json", &buf).Debug("hello", "k", "v")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "v", record["k"])

	buf.Reset()
	newLogger("warn", "text", &buf).Info("dropped")
	assert.Empty(t, buf.String())
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "shelter version "+Version+" (build: "+BuildTime+")\n", out)
}

func TestMigrateAndSeedCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "shelter.yaml")
	cfg := config.DefaultConfig()
	cfg.Database.DSN = filepath.Join(dir, "data", "shelter.db")
	cfg.Frontend.Dir = dir
	require.NoError(t, cfg.SaveToFile(cfgPath))

	out, err := runCLI(t, "migrate", "--config", cfgPath, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema ready")

	out, err = runCLI(t, "seed", "-c", cfgPath, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "Seeded 3 shelters and 6 pets\n", out)

	out, err = runCLI(t, "seed", "-c", cfgPath, "--log-level", "error")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Database already holds a catalogue"))
}

func TestInvalidLogLevelFlag(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "shelter.yaml")
	cfg := config.DefaultConfig()
	cfg.Database.DSN = filepath.Join(dir, "shelter.db")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	_, err := runCLI(t, "migrate", "-c", cfgPath, "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelter.yaml")

	out, err := runCLI(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	loaded, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Server.Addr, loaded.Server.Addr)

	_, err = runCLI(t, "config", "init", path)
	assert.Error(t, err, "refuses to overwrite")
}

func TestConfigInitCommand_UserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	want := filepath.Join(home, config.UserConfigDir, config.UserConfigFile)

	out, err := runCLI(t, "config", "init")
	require.NoError(t, err)
	assert.Equal(t, "Wrote "+want+"\n", out)
	_, err = os.Stat(want)
	require.NoError(t, err)

	_, err = runCLI(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
