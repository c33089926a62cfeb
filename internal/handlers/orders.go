package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/platform/auth"
	"github.com/meridian-commerce/api/internal/platform/httpx"
	"github.com/meridian-commerce/api/internal/repositories"
	"github.com/meridian-commerce/api/internal/services"
)

const maxOrderBodySize = 128 * 1024

// OrderHandlers exposes order placement and tracking for users, and the
// fulfillment state machine for staff.
type OrderHandlers struct {
	authn        *auth.Authenticator
	orders       services.OrderService
	placeLimiter RateLimiter
	verifyMethod func(ctx context.Context, token string) error
}

// OrderOption customises order handler behaviour.
type OrderOption func(*OrderHandlers)

// WithPlaceOrderRateLimiter throttles order placement per user.
func WithPlaceOrderRateLimiter(limiter RateLimiter) OrderOption {
	return func(h *OrderHandlers) {
		h.placeLimiter = limiter
	}
}

// WithPaymentMethodCheck verifies the payment method token against the PSP
// before an order is placed.
func WithPaymentMethodCheck(check func(ctx context.Context, token string) error) OrderOption {
	return func(h *OrderHandlers) {
		h.verifyMethod = check
	}
}

// NewOrderHandlers constructs the order endpoints.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the user-facing order endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listMyOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Get("/{orderId}/tracking", h.getTracking)
	r.Post("/{orderId}/cancel", h.cancelOrder)
}

// AdminRoutes wires the fulfillment endpoints.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.adminListOrders)
	r.Get("/orders/{orderId}", h.adminGetOrder)
	r.Post("/orders/{orderId}/accept", h.acceptOrder)
	r.Post("/orders/{orderId}/transition", h.transitionOrder)
	r.Put("/orders/{orderId}/tracking", h.updateTracking)
}

func (h *OrderHandlers) currentUser(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.UID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthorized", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		PaymentMethodRef string          `json:"payment_method_ref"`
		ShippingMethod   string          `json:"shipping_method"`
		ShippingAddress  addressPayload  `json:"shipping_address"`
		BillingAddress   *addressPayload `json:"billing_address"`
		Discount         int64           `json:"discount"`
	}
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	if h.placeLimiter != nil && !h.placeLimiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order attempts; retry later", http.StatusTooManyRequests))
		return
	}
	if h.verifyMethod != nil && strings.TrimSpace(req.PaymentMethodRef) != "" {
		if err := h.verifyMethod(ctx, req.PaymentMethodRef); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_payment_method", "payment method could not be verified", http.StatusBadRequest))
			return
		}
	}

	cmd := services.PlaceOrderCommand{
		UserID:           identity.UID,
		PaymentMethodRef: req.PaymentMethodRef,
		ShippingMethod:   domain.ShippingMethod(strings.TrimSpace(req.ShippingMethod)),
		ShippingAddress:  req.ShippingAddress.toDomain(),
		Discount:         req.Discount,
	}
	if req.BillingAddress != nil {
		cmd.BillingAddress = req.BillingAddress.toDomain()
	} else {
		cmd.BillingAddress = cmd.ShippingAddress
	}

	order, err := h.orders.Place(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter := repositories.OrderListFilter{
		UserID:     identity.UID,
		Pagination: parsePagination(r),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		filter.Status = append(filter.Status, domain.OrderStatus(raw))
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeOrderPage(w, page)
}

// loadOwnedOrder fetches an order and hides its existence from callers who do
// not own it and hold no staff role.
func (h *OrderHandlers) loadOwnedOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, identity *auth.Identity) (services.Order, bool) {
	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return services.Order{}, false
	}
	if order.UserID != identity.UID && !identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return services.Order{}, false
	}
	return order, true
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	order, ok := h.loadOwnedOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) getTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	order, ok := h.loadOwnedOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	payload := map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
	}
	if order.TrackingID != "" {
		payload["tracking_id"] = order.TrackingID
	}
	if !order.ApprovedAt.IsZero() {
		payload["approved_at"] = formatTime(order.ApprovedAt)
	}
	if !order.DeliveredAt.IsZero() {
		payload["delivered_at"] = formatTime(order.DeliveredAt)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if _, ok := h.loadOwnedOrder(ctx, w, r, identity); !ok {
		return
	}

	order, err := h.orders.Transition(ctx, services.TransitionOrderCommand{
		OrderID:   chi.URLParam(r, "orderId"),
		NewStatus: domain.OrderStatusCancelled,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) adminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter := repositories.OrderListFilter{
		UserID:     strings.TrimSpace(r.URL.Query().Get("user_id")),
		Pagination: parsePagination(r),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			if status = strings.TrimSpace(status); status != "" {
				filter.Status = append(filter.Status, domain.OrderStatus(status))
			}
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("paid")); raw != "" {
		filter.Paid = append(filter.Paid, domain.PaymentState(raw))
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("created_after")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.CreatedAfter = &ts
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("created_before")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.CreatedBefore = &ts
		}
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeOrderPage(w, page)
}

func (h *OrderHandlers) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

type adjustedItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

func toAdjustedItems(items []adjustedItemRequest) []services.AdjustedItem {
	adjusted := make([]services.AdjustedItem, 0, len(items))
	for _, item := range items {
		adjusted = append(adjusted, services.AdjustedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return adjusted
}

func (h *OrderHandlers) acceptOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		AdjustedItems []adjustedItemRequest `json:"adjusted_items"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
			writeBodyError(ctx, w, err)
			return
		}
	}

	order, err := h.orders.Accept(ctx, services.AcceptOrderCommand{
		OrderID:       chi.URLParam(r, "orderId"),
		AdjustedItems: toAdjustedItems(req.AdjustedItems),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Status           string                `json:"status"`
		AdjustedItems    []adjustedItemRequest `json:"adjusted_items"`
		AdjustedShipping *int64                `json:"adjusted_shipping"`
	}
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.Transition(ctx, services.TransitionOrderCommand{
		OrderID:          chi.URLParam(r, "orderId"),
		NewStatus:        domain.OrderStatus(strings.TrimSpace(req.Status)),
		AdjustedItems:    toAdjustedItems(req.AdjustedItems),
		AdjustedShipping: req.AdjustedShipping,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) updateTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		TrackingID string `json:"tracking_id"`
	}
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.UpdateTracking(ctx, chi.URLParam(r, "orderId"), req.TrackingID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func writeOrderPage(w http.ResponseWriter, page domain.CursorPage[services.Order]) {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"orders":          items,
		"next_page_token": page.NextPageToken,
	})
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Refunded  bool   `json:"refunded,omitempty"`
	Replaced  bool   `json:"replaced,omitempty"`
}

type orderPayload struct {
	ID                   string              `json:"id"`
	UserID               string              `json:"user_id"`
	Items                []orderItemPayload  `json:"items"`
	Status               domain.OrderStatus  `json:"status"`
	Paid                 domain.PaymentState `json:"paid"`
	Amount               int64               `json:"amount"`
	ShippingFee          int64               `json:"shipping_fee"`
	ShippingMethod       string              `json:"shipping_method,omitempty"`
	Discount             int64               `json:"discount,omitempty"`
	ShippingAddress      addressPayload      `json:"shipping_address"`
	BillingAddress       addressPayload      `json:"billing_address"`
	PaymentFailureReason string              `json:"payment_failure_reason,omitempty"`
	TrackingID           string              `json:"tracking_id,omitempty"`
	ApprovedAt           string              `json:"approved_at,omitempty"`
	DeliveredAt          string              `json:"delivered_at,omitempty"`
	CreatedAt            string              `json:"created_at,omitempty"`
	UpdatedAt            string              `json:"updated_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Refunded:  item.Refunded,
			Replaced:  item.Replaced,
		})
	}
	return orderPayload{
		ID:                   order.ID,
		UserID:               order.UserID,
		Items:                items,
		Status:               order.Status,
		Paid:                 order.Paid,
		Amount:               order.Amount,
		ShippingFee:          order.ShippingFee,
		ShippingMethod:       string(order.ShippingMethod),
		Discount:             order.Discount,
		ShippingAddress:      buildAddressPayload(order.ShippingAddress),
		BillingAddress:       buildAddressPayload(order.BillingAddress),
		PaymentFailureReason: order.PaymentFailureReason,
		TrackingID:           order.TrackingID,
		ApprovedAt:           formatTime(order.ApprovedAt),
		DeliveredAt:          formatTime(order.DeliveredAt),
		CreatedAt:            formatTime(order.CreatedAt),
		UpdatedAt:            formatTime(order.UpdatedAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderPaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", err.Error(), http.StatusPaymentRequired))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("illegal_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}
