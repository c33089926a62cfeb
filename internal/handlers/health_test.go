package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/services"
)

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestHealthzReportsBuildInfo(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{
			Version:     "1.4.0",
			Environment: "test",
			StartedAt:   fixed.Add(-90 * time.Second),
		}),
		WithHealthClock(func() time.Time { return fixed }),
	)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload["version"] != "1.4.0" {
		t.Fatalf("unexpected version %v", payload["version"])
	}
	if payload["uptime"] != "1m30s" {
		t.Fatalf("unexpected uptime %v", payload["uptime"])
	}
}

func TestReadyzWithoutSystemServiceReturnsOK(t *testing.T) {
	h := NewHealthHandlers()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	system := &stubSystemService{
		report: domain.SystemHealthReport{
			Status:      domain.HealthStatusError,
			GeneratedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {
					Status:  domain.HealthStatusError,
					Latency: 40 * time.Millisecond,
					Detail:  "deadline exceeded",
				},
			},
		},
	}
	h := NewHealthHandlers(WithHealthSystemService(system))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var payload struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.Status != string(domain.HealthStatusError) {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.Checks["firestore"]["detail"] != "deadline exceeded" {
		t.Fatalf("unexpected checks %#v", payload.Checks)
	}
}

func TestReadyzTranslatesReportError(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{err: errors.New("boom")}))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
