// Package site serves the shelter web pages: templated and static pages
// from the frontend directory and the contact form.
package site

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// PageData is passed to every page template.
type PageData struct {
	AppName string
	Path    string
}

// Templates is the reloadable set of page templates found under a
// directory. Templates are keyed by file base name.
type Templates struct {
	dir    string
	logger *slog.Logger

	mu  sync.RWMutex
	set map[string]*template.Template
}

// LoadTemplates parses every *.html file under dir, at any depth. A missing
// directory yields an empty set.
func LoadTemplates(dir string, logger *slog.Logger) (*Templates, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Templates{dir: dir, logger: logger}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Dir returns the template directory.
func (t *Templates) Dir() string { return t.dir }

// Reload re-parses the template set. On failure the previous set is kept.
func (t *Templates) Reload() error {
	set, err := parseTemplates(t.dir)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.set = set
	t.mu.Unlock()

	t.logger.Debug("Templates loaded", "dir", t.dir, "count", len(set))
	return nil
}

func parseTemplates(dir string) (map[string]*template.Template, error) {
	set := make(map[string]*template.Template)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return set, nil
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(dir, "**", "*.html"))
	if err != nil {
		return nil, fmt.Errorf("glob templates: %w", err)
	}
	// Shallow paths win when two files share a base name.
	sort.SliceStable(matches, func(i, j int) bool {
		return len(matches[i]) < len(matches[j])
	})

	for _, path := range matches {
		name := filepath.Base(path)
		if _, dup := set[name]; dup {
			continue
		}
		tmpl, err := template.New(name).ParseFiles(path)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", path, err)
		}
		set[name] = tmpl
	}
	return set, nil
}

// Has reports whether a template with the given name exists.
func (t *Templates) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.set[name]
	return ok
}

// Names returns the sorted template names.
func (t *Templates) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.set))
	for name := range t.set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render executes the named template and writes it with the given status.
// It returns false, without writing, when the template does not exist or
// fails to execute.
func (t *Templates) Render(w http.ResponseWriter, status int, name string, data PageData) bool {
	t.mu.RLock()
	tmpl, ok := t.set[name]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		t.logger.Error("Template execution failed", "template", name, "error", err)
		return false
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
	return true
}
