package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-commerce/api/internal/platform/httpx"
	"github.com/meridian-commerce/api/internal/services"
)

const maxCategoryBodySize = 64 * 1024

// CategoryHandlers exposes public category reads and admin tree management.
type CategoryHandlers struct {
	categories services.CategoryService
}

// NewCategoryHandlers constructs the category endpoints.
func NewCategoryHandlers(categories services.CategoryService) *CategoryHandlers {
	return &CategoryHandlers{categories: categories}
}

// PublicRoutes wires the read-only category endpoints.
func (h *CategoryHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/categories", h.listPublic)
	r.Get("/categories/{categoryId}", h.getCategory)
}

// AdminRoutes wires the category management endpoints.
func (h *CategoryHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/categories", h.createCategory)
	r.Put("/categories/{categoryId}", h.updateCategory)
	r.Delete("/categories/{categoryId}", h.deleteCategory)
	r.Post("/categories/{categoryId}/reorder", h.reorderCategory)
	r.Post("/categories/{categoryId}/move", h.moveCategory)
	r.Post("/categories/repair-ordering", h.repairOrdering)
}

func (h *CategoryHandlers) listPublic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		httpx.WriteError(ctx, w, httpx.NewError("category_service_unavailable", "category service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.categories.ListPublic(ctx)
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}

	payload := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		payload = append(payload, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": payload})
}

func (h *CategoryHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		httpx.WriteError(ctx, w, httpx.NewError("category_service_unavailable", "category service is unavailable", http.StatusServiceUnavailable))
		return
	}

	category, err := h.categories.Get(ctx, chi.URLParam(r, "categoryId"))
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"category": buildCategoryPayload(category)})
}

type categoryRequest struct {
	Name            string            `json:"name"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	ImageURL        string            `json:"image_url"`
	ParentID        string            `json:"parent_id"`
	DisplayOrder    *int              `json:"display_order"`
	IsRecentlyAdded *bool             `json:"is_recently_added"`
	HasParts        *bool             `json:"has_parts"`
	ModelNumbers    []string          `json:"model_numbers"`
	Attributes      map[string]string `json:"attributes"`
}

func (h *CategoryHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		httpx.WriteError(ctx, w, httpx.NewError("category_service_unavailable", "category service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req categoryRequest
	if err := decodeJSONBody(r, maxCategoryBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CreateCategoryCommand{
		Name:         req.Name,
		Title:        req.Title,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		ParentID:     req.ParentID,
		DisplayOrder: req.DisplayOrder,
		ModelNumbers: req.ModelNumbers,
		Attributes:   req.Attributes,
	}
	if req.IsRecentlyAdded != nil {
		cmd.IsRecentlyAdded = *req.IsRecentlyAdded
	}
	if req.HasParts != nil {
		cmd.HasParts = *req.HasParts
	}

	category, err := h.categories.Create(ctx, cmd)
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CategoryHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		httpx.WriteError(ctx, w, httpx.NewError("category_service_unavailable", "category service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Name            *string           `json:"name"`
		Title           *string           `json:"title"`
		Description     *string           `json:"description"`
		ImageURL        *string           `json:"image_url"`
		DisplayOrder    *int              `json:"display_order"`
		IsRecentlyAdded *bool             `json:"is_recently_added"`
		HasParts        *bool             `json:"has_parts"`
		ModelNumbers    []string          `json:"model_numbers"`
		Attributes      map[string]string `json:"attributes"`
	}
	if err := decodeJSONBody(r, maxCategoryBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	category, err := h.categories.Update(ctx, services.UpdateCategoryCommand{
		CategoryID:      chi.URLParam(r, "categoryId"),
		Name:            req.Name,
		Title:           req.Title,
		Description:     req.Description,
		ImageURL:        req.ImageURL,
		DisplayOrder:    req.DisplayOrder,
		IsRecentlyAdded: req.IsRecentlyAdded,
		HasParts:        req.HasParts,
		ModelNumbers:    req.ModelNumbers,
		Attributes:      req.Attributes,
	})
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CategoryHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		httpx.WriteError(ctx, w, httpx.NewError("category_service_unavailable", "category service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.categories.Delete(ctx, chi.URLParam(r, "categoryId")); err != nil {
		writeCategoryError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CategoryHandlers) reorderCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		httpx.WriteError(ctx, w, httpx.NewError("category_service_unavailable", "category service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Direction string `json:"direction"`
	}
	if err := decodeJSONBody(r, maxCategoryBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var direction services.ReorderDirection
	switch strings.ToLower(strings.TrimSpace(req.Direction)) {
	case "up":
		direction = services.ReorderUp
	case "down":
		direction = services.ReorderDown
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "direction must be up or down", http.StatusBadRequest))
		return
	}

	category, err := h.categories.Reorder(ctx, chi.URLParam(r, "categoryId"), direction)
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CategoryHandlers) moveCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		httpx.WriteError(ctx, w, httpx.NewError("category_service_unavailable", "category service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		NewParentID string `json:"new_parent_id"`
	}
	if err := decodeJSONBody(r, maxCategoryBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	category, err := h.categories.Move(ctx, chi.URLParam(r, "categoryId"), req.NewParentID)
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CategoryHandlers) repairOrdering(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		httpx.WriteError(ctx, w, httpx.NewError("category_service_unavailable", "category service is unavailable", http.StatusServiceUnavailable))
		return
	}

	parentID := strings.TrimSpace(r.URL.Query().Get("parent_id"))
	repaired, err := h.categories.ValidateAndRepairOrdering(ctx, parentID)
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"repaired": repaired})
}

type categoryPayload struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Title           string            `json:"title,omitempty"`
	Description     string            `json:"description,omitempty"`
	ImageURL        string            `json:"image_url,omitempty"`
	ParentID        string            `json:"parent_id,omitempty"`
	Level           int               `json:"level"`
	DisplayOrder    int               `json:"display_order"`
	HasChildren     bool              `json:"has_children"`
	IsRecentlyAdded bool              `json:"is_recently_added,omitempty"`
	HasParts        bool              `json:"has_parts,omitempty"`
	ModelNumbers    []string          `json:"model_numbers,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	CreatedAt       string            `json:"created_at,omitempty"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
}

func buildCategoryPayload(category services.Category) categoryPayload {
	return categoryPayload{
		ID:              category.ID,
		Name:            category.Name,
		Title:           category.Title,
		Description:     category.Description,
		ImageURL:        category.ImageURL,
		ParentID:        category.ParentID,
		Level:           category.Level,
		DisplayOrder:    category.DisplayOrder,
		HasChildren:     category.HasChildren,
		IsRecentlyAdded: category.IsRecentlyAdded,
		HasParts:        category.HasParts,
		ModelNumbers:    category.ModelNumbers,
		Attributes:      category.Attributes,
		CreatedAt:       formatTime(category.CreatedAt),
		UpdatedAt:       formatTime(category.UpdatedAt),
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeCategoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCategoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCategoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCategoryDuplicateName):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_category_name", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCategoryMaxDepth):
		httpx.WriteError(ctx, w, httpx.NewError("max_depth_exceeded", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCategoryBoundary):
		httpx.WriteError(ctx, w, httpx.NewError("reorder_boundary", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCategoryProtected):
		httpx.WriteError(ctx, w, httpx.NewError("protected_category", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrCategoryConflict):
		httpx.WriteError(ctx, w, httpx.NewError("category_conflict", "category has been modified; retry", http.StatusConflict))
	case errors.Is(err, services.ErrCategoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("category_service_unavailable", "category service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("category_error", "category operation failed", http.StatusInternalServerError))
	}
}
