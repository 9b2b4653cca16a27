package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/drafts"
	httpmiddleware "github.com/crestpointmarketing/eventra-app-sub000/internal/http/middleware"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/http/respond"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/recommend"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// ReadyCheck probes one backing dependency.
type ReadyCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	TemplatesHandler   *templates.Handler
	LeadsHandler       *leads.Handler
	RecommendHandler   *recommend.Handler
	DraftsHandler      *drafts.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ReadyChecks are run by /ready, keyed by dependency name.
	ReadyChecks map[string]ReadyCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readyHandler(cfg.ReadyChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.TemplatesHandler != nil {
			v1.Mount("/templates", cfg.TemplatesHandler.Routes())
		}
		if cfg.LeadsHandler != nil || cfg.RecommendHandler != nil {
			v1.Route("/leads", func(lr chi.Router) {
				if cfg.LeadsHandler != nil {
					cfg.LeadsHandler.Routes(lr)
				}
				if cfg.RecommendHandler != nil {
					cfg.RecommendHandler.Routes(lr)
				}
			})
		}
		if cfg.DraftsHandler != nil {
			v1.Mount("/drafts", cfg.DraftsHandler.Routes())
		}
	})

	return r
}

func readyHandler(checks map[string]ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		respond.JSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": results})
	}
}
