package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/platform/auth"
	"github.com/meridian-commerce/api/internal/platform/httpx"
	"github.com/meridian-commerce/api/internal/services"
)

const maxCartBodySize = 64 * 1024

// CartHandlers exposes the authenticated user's single active cart.
type CartHandlers struct {
	authn    *auth.Authenticator
	carts    services.CartService
	profiles services.ProfileService
}

// NewCartHandlers constructs the cart endpoints.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, profiles services.ProfileService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts, profiles: profiles}
}

// Routes wires the cart endpoints. All of them require authentication.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Put("/items", h.replaceItems)
	r.Delete("/items/{productId}", h.removeItem)
	r.Delete("/", h.clearCart)
}

func (h *CartHandlers) currentUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.UID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthorized", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *CartHandlers) tierFor(ctx context.Context, userID string) services.Tier {
	if h.profiles == nil {
		return domain.TierFranchise
	}
	tier, err := h.profiles.TierFor(ctx, userID)
	if err != nil {
		return domain.TierFranchise
	}
	return tier
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cart, err := h.carts.Get(ctx, userID, h.tierFor(ctx, userID))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildPricedCartPayload(cart)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int64  `json:"quantity"`
	}
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.Add(ctx, services.AddCartItemCommand{
		UserID:    userID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) replaceItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Items []struct {
			ProductID string `json:"product_id"`
			Quantity  int64  `json:"quantity"`
		} `json:"items"`
	}
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.ReplaceCartItemsCommand{UserID: userID}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	cart, err := h.carts.Replace(ctx, cmd)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cart, err := h.carts.Remove(ctx, userID, chi.URLParam(r, "productId"))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.carts.Clear(ctx, userID); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cartItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type cartPayload struct {
	ID        string            `json:"id"`
	Items     []cartItemPayload `json:"items"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return cartPayload{
		ID:        cart.ID,
		Items:     items,
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
}

type pricedCartItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
	Error     string `json:"error,omitempty"`
}

type pricedCartPayload struct {
	ID    string                  `json:"id"`
	Tier  services.Tier           `json:"tier"`
	Items []pricedCartItemPayload `json:"items"`
	Total int64                   `json:"total"`
}

func buildPricedCartPayload(cart services.PricedCart) pricedCartPayload {
	items := make([]pricedCartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, pricedCartItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
			Error:     item.Error,
		})
	}
	return pricedCartPayload{
		ID:    cart.CartID,
		Tier:  cart.Tier,
		Items: items,
		Total: cart.Total,
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "no active cart", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}
