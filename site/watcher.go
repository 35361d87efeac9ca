package site

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for more changes before
// reloading.
const DefaultDebounce = 300 * time.Millisecond

// TemplateWatcher reloads a template set when files under its directory
// change.
type TemplateWatcher struct {
	templates *Templates
	debounce  time.Duration
	watcher   *fsnotify.Watcher
	logger    *slog.Logger

	// Debouncing: collect changes before reloading
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	reloads  atomic.Int64
	started  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewTemplateWatcher creates a watcher for t. A zero debounce uses
// DefaultDebounce.
func NewTemplateWatcher(t *Templates, debounce time.Duration, logger *slog.Logger) (*TemplateWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &TemplateWatcher{
		templates: t,
		debounce:  debounce,
		watcher:   fsw,
		logger:    logger,
		pending:   make(map[string]fsnotify.Op),
		done:      make(chan struct{}),
	}, nil
}

// Start watches the template directory and reloads in the background until
// ctx is cancelled or Stop is called.
func (w *TemplateWatcher) Start(ctx context.Context) error {
	dir := w.templates.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(dir); err != nil {
		return err
	}

	w.started.Store(true)
	go w.processEvents(ctx)

	w.logger.Info("Template watcher started", "dir", dir, "debounce", w.debounce)
	return nil
}

// Run starts the watcher and blocks until ctx is cancelled.
func (w *TemplateWatcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *TemplateWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Close()
	})
	if !w.started.Load() {
		return err
	}
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		return errors.New("template watcher did not stop in time")
	}
	return err
}

// Reloads returns how many times the template set has been reloaded.
func (w *TemplateWatcher) Reloads() int64 {
	return w.reloads.Load()
}

// addWatchesRecursive adds watches to all directories.
func (w *TemplateWatcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// processEvents handles fsnotify events with debouncing.
func (w *TemplateWatcher) processEvents(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

// handleFSEvent records a template change, watching new directories.
func (w *TemplateWatcher) handleFSEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addWatchesRecursive(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			w.markPending(event)
			return
		}
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".html") {
		return
	}
	w.markPending(event)
}

func (w *TemplateWatcher) markPending(event fsnotify.Event) {
	w.pendingMu.Lock()
	w.pending[event.Name] |= event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("Template change detected", "path", event.Name, "op", event.Op.String())
}

// flushPending reloads the templates once per batch of changes.
func (w *TemplateWatcher) flushPending() {
	w.pendingMu.Lock()
	changed := len(w.pending)
	if changed == 0 {
		w.pendingMu.Unlock()
		return
	}
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	if err := w.templates.Reload(); err != nil {
		w.logger.Warn("Template reload failed, keeping previous set", "error", err)
		return
	}
	n := w.reloads.Add(1)
	w.logger.Info("Templates reloaded", "changes", changed, "reloads", n)
}
