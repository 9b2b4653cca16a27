package recommend

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/http/respond"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

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

// Routes mounts onto the /leads router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{leadID}/recommendation", h.Recommend)
}

// Recommend handles GET /leads/{leadID}/recommendation
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Recommend(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}
