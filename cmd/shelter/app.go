package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/shelter/api"
	"github.com/c360studio/shelter/config"
	"github.com/c360studio/shelter/metrics"
	"github.com/c360studio/shelter/notify"
	"github.com/c360studio/shelter/server"
	"github.com/c360studio/shelter/site"
	"github.com/c360studio/shelter/storage"
)

// App wires the store, notifiers, site and HTTP server together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *storage.Store
	notifier notify.Notifier
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	site     *site.Site
	server   *server.Server
	watcher  *site.TemplateWatcher
}

// NewApp opens the database and builds every component. The returned App
// must be closed.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}

	if err := a.init(ctx); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("Failed to release resources", "error", closeErr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	store, err := openStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.store = store

	if a.cfg.Database.Seed {
		if _, err := store.Seed(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	notifier, err := buildNotifier(a.cfg.Inquiry, a.logger)
	if err != nil {
		return err
	}
	a.notifier = notifier

	if !a.cfg.Metrics.Disabled {
		a.registry = prometheus.NewRegistry()
		a.metrics = metrics.New(a.registry)
	}

	a.site, err = site.New(site.Options{
		FrontendDir: a.cfg.Frontend.Dir,
		AppName:     a.cfg.Frontend.AppName,
	}, store, notifier, a.metrics, a.logger.With("component", "site"))
	if err != nil {
		return fmt.Errorf("load frontend: %w", err)
	}

	if a.cfg.Frontend.Watch {
		a.watcher, err = site.NewTemplateWatcher(a.site.Templates(), a.cfg.Frontend.Debounce, a.logger.With("component", "template-watcher"))
		if err != nil {
			return fmt.Errorf("create template watcher: %w", err)
		}
	}

	deps := server.Deps{
		API:      api.NewHandler(store, a.metrics, a.logger.With("component", "api")),
		Site:     a.site,
		DB:       store,
		Metrics:  a.metrics,
		Notifier: notifier,
		Logger:   a.logger,
	}
	if a.registry != nil {
		deps.Gatherer = a.registry
	}
	a.server, err = server.New(server.Config{
		Addr:            a.cfg.Server.Addr,
		MaxConnections:  a.cfg.Server.MaxConnections,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		IdleTimeout:     a.cfg.Server.IdleTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, deps)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	return nil
}

// buildNotifier combines the configured inquiry destinations, each behind a
// circuit breaker.
func buildNotifier(cfg config.InquiryConfig, logger *slog.Logger) (notify.Notifier, error) {
	breaker := notify.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	}

	var notifiers []notify.Notifier
	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		webhook := notify.NewWebhookNotifier(url, cfg.WebhookTimeout, logger.With("notifier", "webhook"))
		notifiers = append(notifiers, notify.NewBreaker("webhook", webhook, breaker, logger))
		logger.Info("Forwarding inquiries to webhook", "url", url)
	}
	if url := strings.TrimSpace(cfg.NATS.URL); url != "" {
		nc, err := notify.NewNATSNotifier(url, cfg.NATS.Subject, logger.With("notifier", "nats"))
		if err != nil {
			for _, n := range notifiers {
				_ = n.Close()
			}
			return nil, wrapNATSError(err, url)
		}
		notifiers = append(notifiers, notify.NewBreaker("nats", nc, breaker, logger))
		logger.Info("Publishing inquiries to NATS", "url", url, "subject", nc.Subject())
	}
	if len(notifiers) == 0 {
		logger.Info("No inquiry destination configured, contact messages are only stored")
	}
	return notify.Combine(notifiers...), nil
}

// wrapNATSError provides guidance when the NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

Start a server or clear inquiry.nats.url (SHELTER_NATS_URL) to disable
publishing.`, err, url)
	}
	return fmt.Errorf("NATS connection failed: %w", err)
}

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}
	return g.Wait()
}

// Close releases the watcher, notifiers and database.
func (a *App) Close() error {
	var errs []error
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop template watcher: %w", err))
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close notifier: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
