package handlers

import (
	"net/http"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/platform/httpx"
	"github.com/meridian-commerce/api/internal/services"
)

// HealthHandlers serves liveness and readiness endpoints. Healthz reports
// process identity only; Readyz additionally probes downstream dependencies
// through the system service.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	now    func() time.Time
}

// HealthOption customises health handler construction.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the system service used by Readyz.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo attaches build metadata to health responses.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock injects a custom clock primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs the health endpoints.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    h.now().Sub(h.build.StartedAt).String(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commit"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz evaluates downstream dependencies and reports aggregate readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"status":    domain.HealthStatusOK,
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_check_failed", "failed to evaluate dependencies", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":     check.Status,
			"latency_ms": check.Latency.Milliseconds(),
		}
		if check.Detail != "" && check.Detail != "ok" {
			entry["detail"] = check.Detail
		}
		checks[name] = entry
	}

	payload := map[string]any{
		"status":    report.Status,
		"checks":    checks,
		"timestamp": report.GeneratedAt.UTC().Format(time.RFC3339),
	}
	if report.Version != "" {
		payload["version"] = report.Version
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
