package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/activity"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/drafts"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/observability/metrics"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/recommend"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

func newTestRouter(t *testing.T, checks map[string]ReadyCheck) http.Handler {
	t.Helper()

	logger := logging.Default()
	reg := prometheus.NewRegistry()
	m := metrics.NewEngineMetrics(reg)

	tmplSvc := templates.NewService(templates.NewInMemoryRepository(), logger, templates.WithMetrics(m))
	leadRepo := leads.NewInMemoryRepository()
	timeline := activity.NewMemoryTimeline()
	notifier := activity.NewNotifier(timeline, 0, logger)
	t.Cleanup(notifier.Wait)

	recSvc := recommend.NewService(leadRepo, tmplSvc, timeline, recommend.Config{}, logger, recommend.WithMetrics(m))
	draftSvc := drafts.NewService(tmplSvc, leadRepo, drafts.Config{}, logger,
		drafts.WithRecommender(recSvc),
		drafts.WithNotifier(notifier),
		drafts.WithMetrics(m),
	)

	return New(&Config{
		Logger:           logger,
		TemplatesHandler: templates.NewHandler(tmplSvc, logger),
		LeadsHandler:     leads.NewHandler(leadRepo, logger),
		RecommendHandler: recommend.NewHandler(recSvc, logger),
		DraftsHandler:    drafts.NewHandler(draftSvc, logger),
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadyChecks:      checks,
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterReadyReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, map[string]ReadyCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rr := do(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
	assert.Contains(t, rr.Body.String(), `"postgres":"ok"`)
}

func TestRouterTemplateToDraftFlow(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := do(t, router, http.MethodPost, "/v1/templates", map[string]any{
		"name":     "Event invite",
		"category": "warm_up",
		"goal":     "book_meeting",
		"subjects": []map[string]any{{"sort_order": 1, "subject": "{{lead_name}}, see you at {{event_name}}?"}},
		"blocks": []map[string]any{
			{"block_type": "opening", "sort_order": 1, "content": "Hi {{lead_name}},", "allowed_vars": []string{"lead_name"}},
			{"block_type": "event_context", "sort_order": 2, "content": "We will be at {{event_name}}.", "allowed_vars": []string{"event_name"}},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var tmpl templates.Template
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&tmpl))

	rr = do(t, router, http.MethodPost, "/v1/leads", map[string]any{
		"first_name": "Dana",
		"email":      "dana@northwind.io",
		"event_name": "SaaStr",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var lead leads.Lead
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&lead))

	rr = do(t, router, http.MethodGet, "/v1/leads/"+lead.ID+"/recommendation", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rec recommend.Recommendation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rec))
	require.NotEmpty(t, rec.Ranked)
	assert.Equal(t, tmpl.ID, rec.Ranked[0].TemplateID)
	assert.True(t, rec.Fallback)

	rr = do(t, router, http.MethodPost, "/v1/drafts", map[string]any{"template_id": tmpl.ID, "lead_id": lead.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var d drafts.Draft
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&d))
	assert.Equal(t, "Dana, see you at SaaStr?", d.Subject)
	assert.Equal(t, "Hi Dana,\n\nWe will be at SaaStr.", d.Body)

	rr = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "eventra_drafts_assembled_total")
}

func TestRouterUnknownTemplateIs404(t *testing.T) {
	router := newTestRouter(t, nil)
	rr := do(t, router, http.MethodGet, "/v1/templates/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
