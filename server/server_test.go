package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/c360studio/shelter/api"
	"github.com/c360studio/shelter/metrics"
	"github.com/c360studio/shelter/notify"
	"github.com/c360studio/shelter/site"
	"github.com/c360studio/shelter/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fixture struct {
	server *Server
	client *http.Client
	base   string
}

func newFixture(t *testing.T, cfg Config, db Pinger) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := quietLogger()

	store, err := storage.Open(ctx, storage.Options{DSN: storage.MemoryDSN}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.Seed(ctx)
	require.NoError(t, err)
	if db == nil {
		db = store
	}

	frontend := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(frontend, "templates"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(frontend, "templates", "index.html"),
		[]byte("<p>Every pet deserves a home.</p>"), 0644))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	pages, err := site.New(site.Options{FrontendDir: frontend}, store, notify.Nop{}, m, logger)
	require.NoError(t, err)

	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	srv, err := New(cfg, Deps{
		API:      api.NewHandler(store, m, logger),
		Site:     pages,
		DB:       db,
		Metrics:  m,
		Gatherer: reg,
		Logger:   logger,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))

	client := &http.Client{Transport: &http.Transport{}, Timeout: 5 * time.Second}
	t.Cleanup(func() {
		client.CloseIdleConnections()
		assert.NoError(t, srv.Stop(5*time.Second))
	})
	return &fixture{server: srv, client: client, base: "http://" + srv.Addr()}
}

func (f *fixture) get(t *testing.T, path string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.base+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_Routes(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	resp, body := f.get(t, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, body = f.get(t, "/api/pets", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var pets []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &pets))
	assert.Len(t, pets, 6)

	resp, body = f.get(t, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Every pet deserves a home.")

	// Unknown API paths answer JSON; other paths get the site's 404 page.
	resp, body = f.get(t, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, `"Not found"`)

	resp, body = f.get(t, "/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, site.NotFoundMessage)

	resp, body = f.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `shelter_http_requests_total{code="200",method="GET",route="/api/pets"} 1`)
}

func TestServer_RequestID(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	resp, _ := f.get(t, "/healthz", nil)
	generated := resp.Header.Get(RequestIDHeader)
	assert.Len(t, generated, 36, "uuid assigned when absent")

	resp, _ = f.get(t, "/healthz", http.Header{RequestIDHeader: {"abc-123"}})
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))

	resp, _ = f.get(t, "/healthz", http.Header{RequestIDHeader: {strings.Repeat("x", 200)}})
	assert.Len(t, resp.Header.Get(RequestIDHeader), 36, "oversized ids are replaced")
}

func TestServer_HealthUnavailable(t *testing.T) {
	f := newFixture(t, Config{}, fakePinger{err: errors.New("database is locked")})

	resp, body := f.get(t, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "database is locked")
}

type downNotifier struct{}

func (downNotifier) Notify(context.Context, notify.Inquiry) error { return errors.New("connection refused") }
func (downNotifier) Close() error { return nil }

func TestServer_HealthReportsNotifiers(t *testing.T) {
	ctx := context.Background()
	logger := quietLogger()
	store, err := storage.Open(ctx, storage.Options{DSN: storage.MemoryDSN}, logger)
	require.NoError(t, err)
	defer store.Close()

	webhook := notify.NewBreaker("webhook", downNotifier{}, notify.BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	}, logger)
	require.Error(t, webhook.Notify(ctx, notify.Inquiry{ID: 1}))

	srv, err := New(Config{Addr: "127.0.0.1:0"}, Deps{
		API:      api.NewHandler(store, nil, logger),
		DB:       store,
		Notifier: notify.Combine(webhook),
		Logger:   logger,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// A paused notifier is reported without failing the check.
	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Contains(t, body.Notifiers, "webhook")
	assert.True(t, body.Notifiers["webhook"].CircuitOpen)
	assert.False(t, body.Notifiers["webhook"].Available)
	assert.Equal(t, 1, body.Notifiers["webhook"].FailureCount)
}

func TestServer_ConnectionLimit(t *testing.T) {
	f := newFixture(t, Config{MaxConnections: 2}, nil)
	for i := 0; i < 5; i++ {
		resp, _ := f.get(t, "/healthz", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestServer_Lifecycle(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	srv := f.server

	assert.True(t, srv.Health().Healthy)
	assert.Equal(t, "running", srv.Health().Status)
	assert.NotEmpty(t, srv.Addr())
	assert.Error(t, srv.Start(context.Background()), "second start fails")

	f.client.CloseIdleConnections()
	require.NoError(t, srv.Stop(time.Second))
	assert.NoError(t, srv.Stop(time.Second), "stop is idempotent")
	assert.Equal(t, "stopped", srv.Health().Status)
	assert.Empty(t, srv.Addr())
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	store, err := storage.Open(context.Background(), storage.Options{DSN: storage.MemoryDSN}, quietLogger())
	require.NoError(t, err)
	defer store.Close()

	srv, err := New(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, Deps{
		API:    api.NewHandler(store, nil, quietLogger()),
		DB:     store,
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "stopped", srv.Health().Status)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{DB: fakePinger{}})
	assert.Error(t, err)
	_, err = New(Config{}, Deps{API: api.NewHandler(nil, nil, nil)})
	assert.Error(t, err)
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := withRequestID(withRecovery(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
	assert.Contains(t, logs.String(), "Handler panic")
	assert.Contains(t, logs.String(), "boom")
}

func TestAccessLog(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := withRequestID(withAccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, "short and stout")
	})))

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := logs.String()
	for _, want := range []string{"request_id=req-1", "method=GET", "path=/teapot", "status=418", "bytes=15"} {
		assert.Contains(t, line, want)
	}
}
