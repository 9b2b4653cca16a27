package drafts

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAssembleAndConfirm(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, scenarioInput())
	routes := NewHandler(h.service, nil).Routes()

	rec := postJSON(t, routes, "/", map[string]any{"template_id": tmpl.ID, "lead_id": "lead-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var d Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "Hi Sarah", d.Subject)

	confirm := map[string]any{"template_id": tmpl.ID, "lead_id": "lead-1", "subject": d.Subject, "body": d.Body}
	rec = postJSON(t, routes, "/confirm", confirm)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = postJSON(t, routes, "/confirm", confirm)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":true`)
	h.notifier.Wait()
}

func TestHandlerValidation(t *testing.T) {
	h := newHarness(t)
	routes := NewHandler(h.service, nil).Routes()

	rec := postJSON(t, routes, "/", map[string]any{"lead_id": "lead-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "template_id")

	rec = postJSON(t, routes, "/", map[string]any{"template_id": "x", "lead_id": "lead-1", "options": map[string]any{"subject_variants": 20}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = postJSON(t, routes, "/batch", map[string]any{"template_id": "x", "lead_ids": []string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
