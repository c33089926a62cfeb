package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/meridian-commerce/api/internal/platform/auth"
)

// AdminHandlers groups the staff-facing management surfaces under one
// registrar so the router mounts a single /admin group.
type AdminHandlers struct {
	authn      *auth.Authenticator
	categories *CategoryHandlers
	products   *ProductHandlers
	orders     *OrderHandlers
	requests   *RequestHandlers
	media      *MediaHandlers
}

// NewAdminHandlers constructs the admin route group.
func NewAdminHandlers(authn *auth.Authenticator, categories *CategoryHandlers, products *ProductHandlers, orders *OrderHandlers, requests *RequestHandlers, media *MediaHandlers) *AdminHandlers {
	return &AdminHandlers{
		authn:      authn,
		categories: categories,
		products:   products,
		orders:     orders,
		requests:   requests,
		media:      media,
	}
}

// Routes wires every admin endpoint behind a staff role check.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	if h.categories != nil {
		h.categories.AdminRoutes(r)
	}
	if h.products != nil {
		h.products.AdminRoutes(r)
	}
	if h.orders != nil {
		h.orders.AdminRoutes(r)
	}
	if h.requests != nil {
		h.requests.AdminRoutes(r)
	}
	if h.media != nil {
		h.media.AdminRoutes(r)
	}
}
