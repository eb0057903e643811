package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Result().Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("status = %q, want healthy", status.Status)
	}
}

func TestReadinessHandler_AllHealthy(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"upstream": func(ctx context.Context) (bool, error) { return true, nil },
	}

	rec := httptest.NewRecorder()
	ReadinessHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if status.Status != "ready" {
		t.Errorf("status = %q, want ready", status.Status)
	}
	if dep := status.Dependencies["upstream"]; dep.Status != "healthy" {
		t.Errorf("upstream status = %q, want healthy", dep.Status)
	}
}

func TestReadinessHandler_UnhealthyDependency(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"tts": func(ctx context.Context) (bool, error) { return false, fmt.Errorf("breaker open") },
	}

	rec := httptest.NewRecorder()
	ReadinessHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	// Result snapshots the headers at WriteHeader time: anything set after
	// the status code was written is lost on the wire.
	if got := rec.Result().Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if status.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", status.Status)
	}
	if dep := status.Dependencies["tts"]; dep.Status != "unhealthy" || dep.Message != "breaker open" {
		t.Errorf("tts dependency = %+v", dep)
	}
}
