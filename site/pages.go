package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/shelter/api"
	"github.com/c360studio/shelter/metrics"
	"github.com/c360studio/shelter/model"
	"github.com/c360studio/shelter/notify"
	"github.com/c360studio/shelter/storage"
	"github.com/c360studio/shelter/validation"
)

const (
	// DefaultAppName is shown by templates when none is configured.
	DefaultAppName = "Ivory Orchid"

	// MaintenanceMessage answers "/" when no index page exists.
	MaintenanceMessage = "The site is currently unavailable (maybe it's in maintenance?)\ncode: index404"

	// NotFoundMessage answers when neither the 404 template nor file exist.
	NotFoundMessage = "The requested page does not exist"

	indexPage    = "index.html"
	contactPage  = "contact.html"
	notFoundPage = "404.html"

	contactConfirmation = "<html><head></head><body>Request successfully sent!\n<a href=\"/\">Return to the home</a></body></html>"

	// notifyTimeout bounds inquiry delivery once the submission is stored.
	notifyTimeout = 15 * time.Second

	// maxFormBodySize limits url-encoded contact form bodies.
	maxFormBodySize = 1 << 20 // 1 MB
)

// extensionDirs maps file extensions to the frontend subdirectory searched
// after the frontend root.
var extensionDirs = map[string]string{
	"js":  "js",
	"css": "css",
	"png": "img",
	"jpg": "img",
}

// ContactStore persists contact form submissions.
type ContactStore interface {
	CreateContact(ctx context.Context, c *model.Contact) error
}

// Options configures a Site.
type Options struct {
	// FrontendDir holds static files, with templates under "templates".
	FrontendDir string
	// AppName is exposed to templates as .AppName.
	AppName string
}

// Site serves pages from the frontend directory and the contact form.
type Site struct {
	dir       string
	appName   string
	templates *Templates
	store     ContactStore
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New loads the templates of opts.FrontendDir and creates the site.
// notifier and m may be nil.
func New(opts Options, store ContactStore, notifier notify.Notifier, m *metrics.Metrics, logger *slog.Logger) (*Site, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	appName := opts.AppName
	if appName == "" {
		appName = DefaultAppName
	}

	dir, err := filepath.Abs(opts.FrontendDir)
	if err != nil {
		return nil, fmt.Errorf("resolve frontend dir: %w", err)
	}
	templates, err := LoadTemplates(filepath.Join(dir, "templates"), logger)
	if err != nil {
		return nil, err
	}

	return &Site{
		dir:       dir,
		appName:   appName,
		templates: templates,
		store:     store,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Templates returns the site's template set, for hot reloading.
func (s *Site) Templates() *Templates { return s.templates }

// RegisterHTTPHandlers registers the page routes. The catch-all "GET /"
// route serves templates and static files, so API routes must be registered
// with more specific patterns.
func (s *Site) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.Handle("GET /{$}", s.metrics.Middleware("/", http.HandlerFunc(s.handleIndex)))
	for _, p := range []string{"/contact", "/contact.html"} {
		contact := s.metrics.Middleware(p, http.HandlerFunc(s.handleContact))
		mux.Handle("GET "+p, contact)
		mux.Handle("POST "+p, contact)
	}
	mux.Handle("GET /", s.metrics.Middleware("static", http.HandlerFunc(s.handleStatic)))
}

func (s *Site) pageData(r *http.Request) PageData {
	return PageData{AppName: s.appName, Path: r.URL.Path}
}

// handleIndex serves "/".
func (s *Site) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates.Render(w, http.StatusOK, indexPage, s.pageData(r)) {
		return
	}
	if s.serveFile(w, r, filepath.Join(s.dir, indexPage)) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, MaintenanceMessage)
}

// handleContact serves the contact page and accepts its submissions.
func (s *Site) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		s.submitContact(w, r)
		return
	}
	if s.templates.Render(w, http.StatusOK, contactPage, s.pageData(r)) {
		return
	}
	if s.serveFile(w, r, filepath.Join(s.dir, contactPage)) {
		return
	}
	s.notFound(w, r)
}

func isJSONRequest(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}

// submitContact validates, stores and forwards a contact form submission.
// JSON requests get JSON answers; form posts get an HTML confirmation.
func (s *Site) submitContact(w http.ResponseWriter, r *http.Request) {
	asJSON := isJSONRequest(r)

	var fields validation.Fields
	if asJSON {
		var err error
		fields, err = api.DecodeFields(w, r)
		if err != nil {
			s.metrics.ObserveSubmission(metrics.KindContact, metrics.OutcomeInvalid)
			api.WriteJSON(w, http.StatusUnprocessableEntity, api.ErrorResponse{Message: "Invalid JSON data"})
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
		if err := r.ParseForm(); err != nil {
			s.metrics.ObserveSubmission(metrics.KindContact, metrics.OutcomeInvalid)
			api.WriteError(w, http.StatusBadRequest, "Invalid form data", err.Error())
			return
		}
		fields = validation.FieldsFromForm(r.PostForm)
	}

	if errs := validation.ContactData(fields); !errs.Valid() {
		s.metrics.ObserveSubmission(metrics.KindContact, metrics.OutcomeInvalid)
		api.WriteValidationError(w, errs)
		return
	}

	contact := model.Contact{
		Name:    fields.String("name"),
		Email:   fields.String("email"),
		Message: fields.String("message"),
	}
	if err := s.store.CreateContact(r.Context(), &contact); err != nil {
		if errors.Is(err, storage.ErrConstraint) {
			s.metrics.ObserveSubmission(metrics.KindContact, metrics.OutcomeConflict)
			api.WriteError(w, http.StatusConflict, "Error processing request", "Database error occurred")
			return
		}
		s.metrics.ObserveSubmission(metrics.KindContact, metrics.OutcomeError)
		s.logger.Error("Failed to store contact", "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	s.metrics.ObserveSubmission(metrics.KindContact, metrics.OutcomeAccepted)
	s.logger.Info("Contact form received", "id", contact.ID)

	s.forward(r.Context(), contact)

	if asJSON {
		api.WriteJSON(w, http.StatusCreated, map[string]any{
			"message": "Contact form submitted successfully",
			"contact": contact.JSON(),
		})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, contactConfirmation)
}

// forward hands a stored contact to the notifier. The submission is already
// persisted, so failures are only logged and counted.
func (s *Site) forward(ctx context.Context, c model.Contact) {
	if _, ok := s.notifier.(notify.Nop); ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := s.notifier.Notify(ctx, notify.InquiryFromContact(c))
	s.metrics.ObserveNotification(err)
	if err != nil {
		s.logger.Warn("Failed to forward inquiry", "id", c.ID, "error", err)
	}
}

// handleStatic is the fallback for every other GET: a template named like
// the last path segment, then a file under the frontend directory, then
// the 404 page.
func (s *Site) handleStatic(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	if strings.Contains(urlPath, "templates") {
		s.notFound(w, r)
		return
	}

	name := urlPath[strings.LastIndex(urlPath, "/")+1:]
	if name != "" && s.templates.Render(w, http.StatusOK, name, s.pageData(r)) {
		return
	}

	rel := strings.TrimPrefix(urlPath, "/")
	for _, root := range s.searchRoots(name) {
		path, ok := safeJoin(root, rel)
		if ok && s.serveFile(w, r, path) {
			return
		}
	}
	s.notFound(w, r)
}

// searchRoots lists the directories searched for a static file: the
// frontend root, then the subdirectory for its extension.
func (s *Site) searchRoots(name string) []string {
	roots := []string{s.dir}
	ext := "html"
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = strings.ToLower(name[i+1:])
	}
	if sub, ok := extensionDirs[ext]; ok {
		roots = append(roots, filepath.Join(s.dir, sub))
	}
	return roots
}

// safeJoin joins rel under root, refusing paths that escape root.
func safeJoin(root, rel string) (string, bool) {
	rel = filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.Join(root, rel), true
}

// serveFile writes a regular file. It returns false when path is not one.
func (s *Site) serveFile(w http.ResponseWriter, r *http.Request, path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

// notFound answers 404 with the 404 template, else the 404 file, else a
// plain message.
func (s *Site) notFound(w http.ResponseWriter, r *http.Request) {
	if s.templates.Render(w, http.StatusNotFound, notFoundPage, s.pageData(r)) {
		return
	}
	if body, err := os.ReadFile(filepath.Join(s.dir, notFoundPage)); err == nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write(body)
		return
	}
	http.Error(w, NotFoundMessage, http.StatusNotFound)
}
