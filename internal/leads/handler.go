package leads

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/http/respond"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// Handler handles HTTP requests for leads
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// Routes mounts the lead endpoints. Recommendation routes are mounted
// separately under /leads/{leadID}.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.CreateLead)
	r.Get("/", h.ListLeads)
	r.Get("/{leadID}", h.GetLead)
	r.Put("/{leadID}/stage", h.UpdateStage)
}

// CreateLead handles POST /leads requests
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	lead, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("lead created", "id", lead.ID, "stage", lead.Stage)
	respond.JSON(w, http.StatusCreated, lead)
}

// GetLead handles GET /leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, lead)
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// ListLeads handles GET /leads requests
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Limit:  50,
		Offset: 0,
		Stage:  Stage(r.URL.Query().Get("stage")),
	}
	filter.Persona = r.URL.Query().Get("persona")

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	leads, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		respond.Error(w, h.logger, err)
		return
	}
	if leads == nil {
		leads = []*Lead{}
	}

	respond.JSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

type stageRequest struct {
	Stage Stage `json:"stage" validate:"required"`
}

// UpdateStage handles PUT /leads/{leadID}/stage
func (h *Handler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	lead, err := h.repo.UpdateStage(r.Context(), chi.URLParam(r, "leadID"), req.Stage)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, lead)
}
