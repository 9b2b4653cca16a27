package drafts

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/http/respond"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// Handler exposes the draft API.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Assemble)
	r.Post("/confirm", h.Confirm)
	r.Post("/batch", h.Batch)
	return r
}

type assembleRequest struct {
	TemplateID string  `json:"template_id" validate:"required"`
	LeadID     string  `json:"lead_id" validate:"required"`
	Options    Options `json:"options"`
}

// Assemble handles POST /drafts
func (h *Handler) Assemble(w http.ResponseWriter, r *http.Request) {
	var req assembleRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	d, err := h.service.AssembleDraft(r.Context(), req.TemplateID, req.LeadID, req.Options)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, d)
}

// Confirm handles POST /drafts/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	conf, err := h.service.ConfirmSent(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if conf.Duplicate {
		status = http.StatusOK
	}
	respond.JSON(w, status, conf)
}

// Batch handles POST /drafts/batch
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	res, err := h.service.AssembleBatch(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}
