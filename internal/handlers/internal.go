package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-commerce/api/internal/platform/httpx"
	"github.com/meridian-commerce/api/internal/services"
)

// InternalHandlers serves scheduler-invoked endpoints. The /internal group is
// expected to sit behind infrastructure auth middleware, never end users.
type InternalHandlers struct {
	reminders services.CartReminderDispatcher
}

// NewInternalHandlers constructs the internal endpoints.
func NewInternalHandlers(reminders services.CartReminderDispatcher) *InternalHandlers {
	return &InternalHandlers{reminders: reminders}
}

// Routes wires the internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/cart-reminders", h.dispatchCartReminders)
}

func (h *InternalHandlers) dispatchCartReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reminders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("job_unavailable", "reminder dispatcher is unavailable", http.StatusServiceUnavailable))
		return
	}

	queued, err := h.reminders.DispatchReminders(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("job_failed", "cart reminder sweep failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"queued": queued})
}
