package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/platform/auth"
	"github.com/meridian-commerce/api/internal/platform/httpx"
	"github.com/meridian-commerce/api/internal/services"
)

const maxRequestBodySize = 64 * 1024

// RequestHandlers exposes refund and replacement dispositions for users and
// their resolution for staff.
type RequestHandlers struct {
	authn    *auth.Authenticator
	requests services.RequestService
}

// NewRequestHandlers constructs the request endpoints.
func NewRequestHandlers(authn *auth.Authenticator, requests services.RequestService) *RequestHandlers {
	return &RequestHandlers{authn: authn, requests: requests}
}

// Routes wires the user-facing request endpoints.
func (h *RequestHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/refund", h.requestRefund)
	r.Post("/replacement", h.requestReplacement)
	r.Post("/all-eligible", h.requestAllEligible)
	r.Get("/", h.listMyRequests)
	r.Get("/{requestId}", h.getRequest)
}

// AdminRoutes wires the request resolution endpoints.
func (h *RequestHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/requests", h.adminListRequests)
	r.Get("/requests/{requestId}", h.adminGetRequest)
	r.Post("/requests/{requestId}/items/{productId}/resolve", h.resolveItem)
}

func (h *RequestHandlers) currentUser(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.UID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthorized", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

type dispositionRequest struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
}

func (h *RequestHandlers) requestDisposition(w http.ResponseWriter, r *http.Request, submit func(context.Context, services.DispositionCommand) (services.Request, error)) {
	ctx := r.Context()
	identity, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "request service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req dispositionRequest
	if err := decodeJSONBody(r, maxRequestBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	request, err := submit(ctx, services.DispositionCommand{
		UserID:    identity.UID,
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Reason:    req.Reason,
	})
	if err != nil {
		writeRequestError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"request": buildRequestPayload(request)})
}

func (h *RequestHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	h.requestDisposition(w, r, func(ctx context.Context, cmd services.DispositionCommand) (services.Request, error) {
		return h.requests.RequestRefund(ctx, cmd)
	})
}

func (h *RequestHandlers) requestReplacement(w http.ResponseWriter, r *http.Request) {
	h.requestDisposition(w, r, func(ctx context.Context, cmd services.DispositionCommand) (services.Request, error) {
		return h.requests.RequestReplacement(ctx, cmd)
	})
}

func (h *RequestHandlers) requestAllEligible(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "request service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		OrderID string `json:"order_id"`
		Type    string `json:"type"`
		Reason  string `json:"reason"`
	}
	if err := decodeJSONBody(r, maxRequestBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var requestType domain.RequestType
	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case "refund":
		requestType = domain.RequestTypeRefund
	case "replacement":
		requestType = domain.RequestTypeReplacement
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "type must be refund or replacement", http.StatusBadRequest))
		return
	}

	request, err := h.requests.RequestAllEligible(ctx, services.BulkDispositionCommand{
		UserID:  identity.UID,
		OrderID: req.OrderID,
		Type:    requestType,
		Reason:  req.Reason,
	})
	if err != nil {
		writeRequestError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"request": buildRequestPayload(request)})
}

func (h *RequestHandlers) listMyRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "request service is unavailable", http.StatusServiceUnavailable))
		return
	}

	page, err := h.requests.ListByUser(ctx, identity.UID, parsePagination(r))
	if err != nil {
		writeRequestError(ctx, w, err)
		return
	}
	writeRequestPage(w, page)
}

func (h *RequestHandlers) getRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "request service is unavailable", http.StatusServiceUnavailable))
		return
	}

	request, err := h.requests.Get(ctx, chi.URLParam(r, "requestId"))
	if err != nil {
		writeRequestError(ctx, w, err)
		return
	}
	if request.UserID != identity.UID && !identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("request_not_found", "request not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"request": buildRequestPayload(request)})
}

func (h *RequestHandlers) adminListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "request service is unavailable", http.StatusServiceUnavailable))
		return
	}

	page, err := h.requests.List(ctx, parsePagination(r))
	if err != nil {
		writeRequestError(ctx, w, err)
		return
	}
	writeRequestPage(w, page)
}

func (h *RequestHandlers) adminGetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "request service is unavailable", http.StatusServiceUnavailable))
		return
	}

	request, err := h.requests.Get(ctx, chi.URLParam(r, "requestId"))
	if err != nil {
		writeRequestError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"request": buildRequestPayload(request)})
}

func (h *RequestHandlers) resolveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "request service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Decision string `json:"decision"`
		Notes    string `json:"notes"`
	}
	if err := decodeJSONBody(r, maxRequestBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var decision services.ResolveDecision
	switch strings.ToLower(strings.TrimSpace(req.Decision)) {
	case "approved", "approve":
		decision = services.ResolveApproved
	case "rejected", "reject":
		decision = services.ResolveRejected
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "decision must be approved or rejected", http.StatusBadRequest))
		return
	}

	request, err := h.requests.ResolveItem(ctx, services.ResolveRequestItemCommand{
		RequestID: chi.URLParam(r, "requestId"),
		ProductID: chi.URLParam(r, "productId"),
		Decision:  decision,
		Notes:     req.Notes,
	})
	if err != nil {
		writeRequestError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"request": buildRequestPayload(request)})
}

func writeRequestPage(w http.ResponseWriter, page domain.CursorPage[services.Request]) {
	items := make([]requestPayload, 0, len(page.Items))
	for _, request := range page.Items {
		items = append(items, buildRequestPayload(request))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"requests":        items,
		"next_page_token": page.NextPageToken,
	})
}

type requestItemPayload struct {
	ProductID   string `json:"product_id"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	AdminNotes  string `json:"admin_notes,omitempty"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

type requestPayload struct {
	ID          string               `json:"id"`
	OrderID     string               `json:"order_id"`
	UserID      string               `json:"user_id"`
	Items       []requestItemPayload `json:"items"`
	Status      string               `json:"status"`
	CompletedAt string               `json:"completed_at,omitempty"`
	CreatedAt   string               `json:"created_at,omitempty"`
	UpdatedAt   string               `json:"updated_at,omitempty"`
}

func buildRequestPayload(request services.Request) requestPayload {
	items := make([]requestItemPayload, 0, len(request.Items))
	for _, item := range request.Items {
		items = append(items, requestItemPayload{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Type:        string(item.RequestType),
			Status:      string(item.Status),
			Reason:      item.Reason,
			AdminNotes:  item.AdminNotes,
			ProcessedAt: formatTime(item.ProcessedAt),
		})
	}
	return requestPayload{
		ID:          request.ID,
		OrderID:     request.OrderID,
		UserID:      request.UserID,
		Items:       items,
		Status:      string(request.Status),
		CompletedAt: formatTime(request.CompletedAt),
		CreatedAt:   formatTime(request.CreatedAt),
		UpdatedAt:   formatTime(request.UpdatedAt),
	}
}

func writeRequestError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrRequestInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRequestNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("request_not_found", "request not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRequestDuplicate):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_request", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRequestNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("not_eligible", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrRequestUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "request service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("request_error", "request operation failed", http.StatusInternalServerError))
	}
}
