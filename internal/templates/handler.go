package templates

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/http/respond"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// Handler exposes the template store over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new templates handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the template endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{templateID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/versions/{version}", h.GetVersion)
		r.Post("/status", h.SetStatus)
		r.Post("/duplicate", h.Duplicate)
	})
	return r
}

// Create handles POST /templates
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	t, err := h.service.Create(r.Context(), in)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, t)
}

// List handles GET /templates
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Category:       Category(q.Get("category")),
		Goal:           Goal(q.Get("goal")),
		Status:         Status(q.Get("status")),
		Language:       q.Get("language"),
		Persona:        q.Get("persona"),
		IncludeDeleted: q.Get("include_deleted") == "true",
		Query:          q.Get("q"),
	}
	if v := q.Get("is_system"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respond.Error(w, h.logger, queryIssue("is_system", "must be true or false"))
			return
		}
		filter.IsSystem = &b
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), 50); err != nil {
		respond.Error(w, h.logger, queryIssue("limit", "must be an integer"))
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		respond.Error(w, h.logger, queryIssue("offset", "must be an integer"))
		return
	}

	res, err := h.service.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if res.Items == nil {
		res.Items = []*Template{}
	}
	respond.JSON(w, http.StatusOK, res)
}

// Get handles GET /templates/{templateID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

// GetVersion handles GET /templates/{templateID}/versions/{version}
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		respond.Error(w, h.logger, queryIssue("version", "must be an integer"))
		return
	}
	t, err := h.service.GetVersion(r.Context(), chi.URLParam(r, "templateID"), version)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

// Update handles PATCH /templates/{templateID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var p Patch
	if err := respond.Decode(r, &p); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	t, err := h.service.Update(r.Context(), chi.URLParam(r, "templateID"), p)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

type statusRequest struct {
	Version int    `json:"version" validate:"required,gt=0"`
	Status  Status `json:"status" validate:"required,oneof=enabled disabled"`
}

// SetStatus handles POST /templates/{templateID}/status
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	t, err := h.service.SetStatus(r.Context(), chi.URLParam(r, "templateID"), req.Version, req.Status)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

type duplicateRequest struct {
	Name string `json:"name" validate:"max=200"`
}

// Duplicate handles POST /templates/{templateID}/duplicate
func (h *Handler) Duplicate(w http.ResponseWriter, r *http.Request) {
	var req duplicateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	t, err := h.service.Duplicate(r.Context(), chi.URLParam(r, "templateID"), req.Name)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, t)
}

// Delete handles DELETE /templates/{templateID}?version=N[&hard=true]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	version, err := strconv.Atoi(strings.TrimSpace(q.Get("version")))
	if err != nil || version <= 0 {
		respond.Error(w, h.logger, queryIssue("version", "required positive integer"))
		return
	}
	hard := q.Get("hard") == "true"
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "templateID"), version, hard); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryIssue(field, msg string) error {
	return apperr.Validation("templates: parse request", apperr.Issue{Field: field, Message: msg})
}
