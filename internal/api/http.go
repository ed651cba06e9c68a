package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/projdeck/internal/catalog"
	"github.com/kalambet/projdeck/internal/launcher"
	"github.com/kalambet/projdeck/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Catalog *catalog.ViewModel
	Token   string
}

// FilterState is the wire form of the active filter. A nil Language means
// every language passes; "" selects projects without a language.
type FilterState struct {
	Language *string `json:"language"`
	Search   string  `json:"search"`
}

func filterState(vm *catalog.ViewModel) FilterState {
	st := FilterState{Search: vm.SearchQuery()}
	if lang, ok := vm.Filter().Language(); ok {
		st.Language = &lang
	}
	return st
}

// NewAppHandler returns the project catalog REST API. Every route except
// /health requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/projects", handleListDisplay(deps))
		r.Get("/projects/all", handleListAll(deps))
		r.Get("/projects/languages", handleLanguages(deps))
		r.Post("/projects", handleAddProject(deps))
		r.Get("/projects/{id}", handleGetProject(deps))
		r.Patch("/projects/{id}", handlePatchProject(deps))
		r.Delete("/projects/{id}", handleDeleteProject(deps))
		r.Post("/projects/{id}/open-folder", handleLaunch(deps, (*catalog.ViewModel).OpenFolder))
		r.Post("/projects/{id}/open-editor", handleLaunch(deps, (*catalog.ViewModel).OpenInEditor))
		r.Post("/projects/{id}/run-script", handleLaunch(deps, (*catalog.ViewModel).RunScript))

		r.Get("/filter", handleGetFilter(deps))
		r.Put("/filter", handlePutFilter(deps))
		r.Post("/save", handleSave(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func handleListDisplay(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Catalog.Display())
	}
}

func handleListAll(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Catalog.Projects())
	}
}

func handleLanguages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		langs := deps.Catalog.Languages()
		if langs == nil {
			langs = []string{}
		}
		writeJSON(w, langs)
	}
}

func handleGetProject(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := projectID(w, r)
		if !ok {
			return
		}
		snap, err := deps.Catalog.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, snap)
	}
}

func handleAddProject(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, ok := decodeFields(w, r, true)
		if !ok {
			return
		}
		snap, err := deps.Catalog.AddWith(fields)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(snap)
	}
}

func handlePatchProject(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := projectID(w, r)
		if !ok {
			return
		}
		fields, ok := decodeFields(w, r, false)
		if !ok {
			return
		}
		snap, err := deps.Catalog.SetFields(id, fields)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, snap)
	}
}

func handleDeleteProject(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := projectID(w, r)
		if !ok {
			return
		}
		if err := deps.Catalog.Remove(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleLaunch(deps AppDeps, action func(*catalog.ViewModel, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := projectID(w, r)
		if !ok {
			return
		}
		if err := action(deps.Catalog, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "launched"})
	}
}

func handleGetFilter(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, filterState(deps.Catalog))
	}
}

func handlePutFilter(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req FilterState
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Language == nil {
			deps.Catalog.SetLanguageFilter(catalog.AllLanguages())
		} else {
			deps.Catalog.SetLanguageFilter(catalog.OnlyLanguage(*req.Language))
		}
		deps.Catalog.SetSearchQuery(req.Search)

		writeJSON(w, map[string]any{
			"filter":   filterState(deps.Catalog),
			"projects": deps.Catalog.Display(),
		})
	}
}

func handleSave(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Catalog.SaveAll(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"status": "saved", "projects": len(deps.Catalog.Projects())})
	}
}

func projectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid project id %q", raw)
		return 0, false
	}
	return id, true
}

// decodeFields reads a {"field": "value"} object. An empty body is allowed
// only when optional is set.
func decodeFields(w http.ResponseWriter, r *http.Request, optional bool) (map[string]string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	fields := map[string]string{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return fields, true
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return nil, false
	}
	return fields, true
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrProjectNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, catalog.ErrUnknownField):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, storage.ErrStorage):
		httpError(w, http.StatusInternalServerError, "storage_error", "%v", err)
	case errors.Is(err, launcher.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, launcher.ErrLaunchFailure):
		httpError(w, http.StatusBadGateway, "launch_error", "%v", err)
	case errors.Is(err, catalog.ErrNoLauncher):
		httpError(w, http.StatusNotImplemented, "launch_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
