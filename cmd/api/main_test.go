package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSetupMetricsExposesEngineMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveDraft("ok")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "eventra_drafts_assembled_total") {
		t.Fatalf("expected drafts counter to be exported")
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collector to be exported")
	}
}

func TestReadyChecksSkipMissingDependencies(t *testing.T) {
	if checks := readyChecks(nil, nil); len(checks) != 0 {
		t.Fatalf("expected no checks, got %d", len(checks))
	}
}

func TestReadyChecksPingRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checks := readyChecks(nil, client)
	check, ok := checks["redis"]
	if !ok {
		t.Fatalf("expected redis check")
	}
	if err := check(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}
