// Package server assembles the shelter HTTP server: API, pages, health and
// metrics endpoints behind request-id, access-log and recovery middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	"github.com/c360studio/shelter/api"
	"github.com/c360studio/shelter/metrics"
	"github.com/c360studio/shelter/notify"
	"github.com/c360studio/shelter/site"
)

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// Config holds the listener settings.
type Config struct {
	// Addr is the TCP listen address. Port 0 picks a free port.
	Addr string

	// MaxConnections caps concurrent connections when positive.
	MaxConnections int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Pinger checks the backing database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators mounted by the server. Site, Metrics,
// Gatherer and Notifier are optional.
type Deps struct {
	API      *api.Handler
	Site     *site.Site
	DB       Pinger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Notifier is reported on /healthz when it tracks delivery health.
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Server is the HTTP server component.
type Server struct {
	config  Config
	handler http.Handler
	db       Pinger
	notifier notify.Notifier
	logger   *slog.Logger

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	mu        sync.RWMutex
	srv       *http.Server
	listener  net.Listener
	startTime time.Time
	serveErr  chan error
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.API == nil {
		return nil, errors.New("server: API handler is required")
	}
	if deps.DB == nil {
		return nil, errors.New("server: database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{config: cfg, db: deps.DB, notifier: deps.Notifier, logger: logger}

	mux := http.NewServeMux()
	deps.API.RegisterHTTPHandlers("/api", mux)
	mux.Handle("GET /healthz", deps.Metrics.Middleware("/healthz", http.HandlerFunc(s.handleHealth)))
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(deps.Gatherer))
	}
	if deps.Site != nil {
		deps.Site.RegisterHTTPHandlers(mux)
	}

	s.handler = withRequestID(withAccessLog(logger, withRecovery(logger, mux)))
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// healthResponse is the /healthz body.
type healthResponse struct {
	Status    string                   `json:"status"`
	Error     string                   `json:"error,omitempty"`
	Notifiers map[string]notify.Health `json:"notifiers,omitempty"`
}

// handleHealth answers 200 when the database responds, 503 otherwise.
// Notifier health is reported but never fails the check, since inquiries
// are stored whether or not they are forwarded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if s.notifier != nil {
		resp.Notifiers = notify.Healths(s.notifier)
	}
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("Health check failed", "error", err)
		resp.Status = "unavailable"
		resp.Error = err.Error()
		api.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// Start listens and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateStopped, stateStarting) {
		current := s.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("server already running or starting")
		}
		return fmt.Errorf("server in invalid state: %d", current)
	}

	defer func() {
		if s.state.Load() == stateStarting {
			s.state.Store(stateStopped)
		}
	}()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	if s.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	serveErr := make(chan error, 1)

	s.mu.Lock()
	s.srv = srv
	s.listener = ln
	s.startTime = time.Now()
	s.serveErr = serveErr
	s.mu.Unlock()

	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
		close(serveErr)
	}()

	s.state.Store(stateRunning)
	s.logger.Info("HTTP server started",
		"addr", ln.Addr().String(),
		"max_connections", s.config.MaxConnections)
	return nil
}

// Stop gracefully shuts the server down, waiting up to timeout for active
// requests.
func (s *Server) Stop(timeout time.Duration) error {
	if !s.state.CompareAndSwap(stateRunning, stateStopping) {
		current := s.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("server in unexpected state: %d", current)
	}
	defer s.state.Store(stateStopped)

	s.mu.RLock()
	srv, serveErr := s.srv, s.serveErr
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	if err != nil {
		srv.Close()
	}
	if serr := <-serveErr; serr != nil && err == nil {
		err = serr
	}

	s.logger.Info("HTTP server stopped")
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Run starts the server and blocks until ctx is cancelled or serving fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	serveErr := s.serveErr
	s.mu.RUnlock()

	select {
	case <-ctx.Done():
		return s.Stop(s.config.ShutdownTimeout)
	case err := <-serveErr:
		s.state.Store(stateStopped)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

// Addr returns the bound listen address, or "" when not running.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil || s.state.Load() != stateRunning {
		return ""
	}
	return s.listener.Addr().String()
}

// HealthStatus describes the server lifecycle.
type HealthStatus struct {
	Healthy bool
	Status  string
	Uptime  time.Duration
}

// Health returns the current lifecycle status.
func (s *Server) Health() HealthStatus {
	state := s.state.Load()

	s.mu.RLock()
	startTime := s.startTime
	s.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	var uptime time.Duration
	if state == stateRunning {
		uptime = time.Since(startTime)
	}
	return HealthStatus{Healthy: state == stateRunning, Status: status, Uptime: uptime}
}
