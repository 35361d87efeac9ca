// Package api serves the JSON data endpoints: the pet and shelter catalogue
// and user registration.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/c360studio/shelter/metrics"
	"github.com/c360studio/shelter/model"
	"github.com/c360studio/shelter/storage"
	"github.com/c360studio/shelter/validation"
)

// Store is the persistence used by the API handlers.
type Store interface {
	ListPets(ctx context.Context, filter storage.PetFilter) ([]model.Pet, error)
	GetPet(ctx context.Context, id int64) (model.Pet, error)
	ListShelters(ctx context.Context) ([]model.Shelter, error)
	GetShelter(ctx context.Context, id int64) (model.Shelter, error)
	CreateUser(ctx context.Context, u *model.User) error
}

// Handler provides the /api endpoints.
type Handler struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler creates the API handler. m may be nil.
func NewHandler(store Store, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, metrics: m, logger: logger}
}

// RegisterHTTPHandlers registers the API endpoints under prefix, typically
// "/api". Each route is instrumented with its pattern as the metric label.
func (h *Handler) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = strings.TrimSuffix(prefix, "/")

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/pets", h.handleListPets},
		{http.MethodGet, "/pets/{id}", h.handleGetPet},
		{http.MethodGet, "/shelters", h.handleListShelters},
		{http.MethodGet, "/shelters/{id}", h.handleGetShelter},
		{http.MethodPost, "/users/register", h.handleRegisterUser},
	}
	allowed := make(map[string][]string)
	var paths []string
	for _, rt := range routes {
		route := prefix + rt.path
		mux.Handle(rt.method+" "+route, h.metrics.Middleware(route, rt.handler))
		if _, seen := allowed[route]; !seen {
			paths = append(paths, route)
		}
		allowed[route] = append(allowed[route], rt.method)
	}

	// The mux answers unmatched methods and paths in text/plain, so every
	// other common method gets an explicit JSON answer. Method-less
	// patterns would conflict with the site's "GET /" catch-all.
	for _, route := range paths {
		methods := allowed[route]
		notAllowed := h.methodNotAllowed(methods)
		for _, m := range fallbackMethods {
			if !slices.Contains(methods, m) {
				mux.Handle(m+" "+route, notAllowed)
			}
		}
	}
	for _, m := range fallbackMethods {
		mux.HandleFunc(m+" "+prefix+"/", h.handleNotFound)
	}
}

// fallbackMethods are the methods answered in JSON on unmatched API routes.
var fallbackMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

func (h *Handler) methodNotAllowed(methods []string) http.Handler {
	allow := slices.Clone(methods)
	if slices.Contains(allow, http.MethodGet) {
		allow = append(allow, http.MethodHead)
	}
	header := strings.Join(allow, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", header)
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method+" is not supported on "+r.URL.Path)
	})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Not found", "no API endpoint at "+r.URL.Path)
}

// handleListPets handles GET /api/pets.
// Query parameters:
//   - type: pet type, case-insensitive (e.g. "dog")
//   - status: available or pending
func (h *Handler) handleListPets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.PetFilter{Animal: query.Get("type")}
	if s := query.Get("status"); s != "" {
		status, err := model.ParsePetStatus(s)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid status filter", err.Error())
			return
		}
		filter.Status = status
	}

	pets, err := h.store.ListPets(r.Context(), filter)
	if err != nil {
		h.internalError(w, "list pets", err)
		return
	}
	WriteJSON(w, http.StatusOK, model.ProjectAll(pets, model.ProjectionShort))
}

// handleGetPet handles GET /api/pets/{id}.
func (h *Handler) handleGetPet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusNotFound, "Pet not found", "pet id must be an integer")
		return
	}

	pet, err := h.store.GetPet(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Pet not found", "no pet with id "+strconv.FormatInt(id, 10))
		return
	} else if err != nil {
		h.internalError(w, "get pet", err)
		return
	}
	WriteJSON(w, http.StatusOK, pet.Project(model.ProjectionFull))
}

// handleListShelters handles GET /api/shelters.
func (h *Handler) handleListShelters(w http.ResponseWriter, r *http.Request) {
	shelters, err := h.store.ListShelters(r.Context())
	if err != nil {
		h.internalError(w, "list shelters", err)
		return
	}
	WriteJSON(w, http.StatusOK, model.ProjectAll(shelters, model.ProjectionShort))
}

// handleGetShelter handles GET /api/shelters/{id}.
func (h *Handler) handleGetShelter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusNotFound, "Shelter not found", "shelter id must be an integer")
		return
	}

	shelter, err := h.store.GetShelter(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Shelter not found", "no shelter with id "+strconv.FormatInt(id, 10))
		return
	} else if err != nil {
		h.internalError(w, "get shelter", err)
		return
	}
	WriteJSON(w, http.StatusOK, shelter.Project(model.ProjectionFull))
}

// handleRegisterUser handles POST /api/users/register.
func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	fields, err := DecodeFields(w, r)
	if err != nil {
		h.metrics.ObserveSubmission(metrics.KindUser, metrics.OutcomeInvalid)
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Message: "Invalid JSON data"})
		return
	}

	if errs := validation.UserData(fields); !errs.Valid() {
		h.metrics.ObserveSubmission(metrics.KindUser, metrics.OutcomeInvalid)
		WriteValidationError(w, errs)
		return
	}

	age, _ := validation.ParseAge(fields["age"])
	user := model.User{
		Name:  fields.String("name"),
		Email: fields.String("email"),
		Age:   age,
	}

	err = h.store.CreateUser(r.Context(), &user)
	switch {
	case errors.Is(err, storage.ErrDuplicateEmail):
		h.metrics.ObserveSubmission(metrics.KindUser, metrics.OutcomeConflict)
		WriteError(w, http.StatusConflict, "Email already registered", "A user with this email already exists")
		return
	case errors.Is(err, storage.ErrConstraint):
		h.metrics.ObserveSubmission(metrics.KindUser, metrics.OutcomeConflict)
		WriteError(w, http.StatusConflict, "Error processing request", "Database error occurred")
		return
	case err != nil:
		h.metrics.ObserveSubmission(metrics.KindUser, metrics.OutcomeError)
		h.internalError(w, "register user", err)
		return
	}

	h.metrics.ObserveSubmission(metrics.KindUser, metrics.OutcomeAccepted)
	h.logger.Info("User registered", "id", user.ID)
	WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user.JSON(),
	})
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("Request failed", "op", op, "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal server error", err.Error())
}

// pathID parses the {id} path value. Only positive integers are ids.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
