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

const (
	maxProductBodySize = 256 * 1024
	maxImportBodySize  = 4 * 1024 * 1024
)

// ProductHandlers exposes tier-priced catalog reads and admin product
// management. Public reads resolve the caller's tier through the profile
// service; anonymous callers see Franchise pricing.
type ProductHandlers struct {
	catalog  services.CatalogService
	profiles services.ProfileService
}

// NewProductHandlers constructs the product endpoints.
func NewProductHandlers(catalog services.CatalogService, profiles services.ProfileService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog, profiles: profiles}
}

// PublicRoutes wires the read-only catalog endpoints.
func (h *ProductHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productId}", h.getProduct)
	r.Get("/products/special-sets", h.specialSets)
}

// AdminRoutes wires the product management endpoints.
func (h *ProductHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productId}", h.updateProduct)
	r.Delete("/products/{productId}", h.deleteProduct)
	r.Post("/products/import", h.importProducts)
}

// callerTier resolves the pricing tier for the current request. Anonymous
// callers and profile lookup failures fall back to the Franchise tier so the
// catalog stays readable at list price.
func (h *ProductHandlers) callerTier(ctx context.Context) services.Tier {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.UID == "" || h.profiles == nil {
		return domain.TierFranchise
	}
	tier, err := h.profiles.TierFor(ctx, identity.UID)
	if err != nil {
		return domain.TierFranchise
	}
	return tier
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := services.ProductListQuery{
		CategoryID: strings.TrimSpace(r.URL.Query().Get("category_id")),
		BrandID:    strings.TrimSpace(r.URL.Query().Get("brand_id")),
		Search:     strings.TrimSpace(r.URL.Query().Get("q")),
		Tier:       h.callerTier(ctx),
		Pagination: parsePagination(r),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("tags")); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				query.Tags = append(query.Tags, tag)
			}
		}
	}

	page, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildProductPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"products":        items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	priced, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productId"), h.callerTier(ctx))
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(priced)})
}

func (h *ProductHandlers) specialSets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	sets, err := h.catalog.SpecialSets(ctx, h.callerTier(ctx))
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	payload := map[string]any{
		"tier":         sets.Tier,
		"featured":     buildProductPayloads(sets.Featured),
		"most_popular": buildProductPayloads(sets.MostPopular),
		"most_sold":    buildProductPayloads(sets.MostSold),
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type tierPricingPayload struct {
	Wholesale  int64 `json:"wholesale"`
	Retailer   int64 `json:"retailer"`
	ChainStore int64 `json:"chain_store"`
	Franchise  int64 `json:"franchise"`
}

type productWriteRequest struct {
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Price         int64               `json:"price"`
	CostPrice     int64               `json:"cost_price"`
	Pricing       *tierPricingPayload `json:"pricing"`
	CategoryID    string              `json:"category_id"`
	SubCategoryID string              `json:"sub_category_id"`
	BrandID       string              `json:"brand_id"`
	Stock         int64               `json:"stock"`
	SKU           string              `json:"sku"`
	Tags          []string            `json:"tags"`
	Attributes    map[string]string   `json:"attributes"`
	ImageURL      string              `json:"image_url"`
	Published     bool                `json:"published"`
	Featured      bool                `json:"featured"`
	MostPopular   bool                `json:"most_popular"`
	MostSold      bool                `json:"most_sold"`
	DisplayOrder  *int                `json:"display_order"`
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req productWriteRequest
	if err := decodeJSONBody(r, maxProductBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CreateProductCommand{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		CostPrice:     req.CostPrice,
		CategoryID:    req.CategoryID,
		SubCategoryID: req.SubCategoryID,
		BrandID:       req.BrandID,
		Stock:         req.Stock,
		SKU:           req.SKU,
		Tags:          req.Tags,
		Attributes:    req.Attributes,
		ImageURL:      req.ImageURL,
		Published:     req.Published,
		Featured:      req.Featured,
		MostPopular:   req.MostPopular,
		MostSold:      req.MostSold,
		DisplayOrder:  req.DisplayOrder,
	}
	if req.Pricing != nil {
		cmd.Pricing = services.TierPriceInput{
			Wholesale:  req.Pricing.Wholesale,
			Retailer:   req.Pricing.Retailer,
			ChainStore: req.Pricing.ChainStore,
			Franchise:  req.Pricing.Franchise,
		}
	}

	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"product": buildAdminProductPayload(product)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Name          *string             `json:"name"`
		Description   *string             `json:"description"`
		Price         *int64              `json:"price"`
		CostPrice     *int64              `json:"cost_price"`
		Pricing       *tierPricingPayload `json:"pricing"`
		CategoryID    *string             `json:"category_id"`
		SubCategoryID *string             `json:"sub_category_id"`
		BrandID       *string             `json:"brand_id"`
		Stock         *int64              `json:"stock"`
		SKU           *string             `json:"sku"`
		Tags          []string            `json:"tags"`
		Attributes    map[string]string   `json:"attributes"`
		ImageURL      *string             `json:"image_url"`
		Published     *bool               `json:"published"`
		Featured      *bool               `json:"featured"`
		MostPopular   *bool               `json:"most_popular"`
		MostSold      *bool               `json:"most_sold"`
		DisplayOrder  *int                `json:"display_order"`
	}
	if err := decodeJSONBody(r, maxProductBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:     chi.URLParam(r, "productId"),
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		CostPrice:     req.CostPrice,
		CategoryID:    req.CategoryID,
		SubCategoryID: req.SubCategoryID,
		BrandID:       req.BrandID,
		Stock:         req.Stock,
		SKU:           req.SKU,
		Tags:          req.Tags,
		Attributes:    req.Attributes,
		ImageURL:      req.ImageURL,
		Published:     req.Published,
		Featured:      req.Featured,
		MostPopular:   req.MostPopular,
		MostSold:      req.MostSold,
		DisplayOrder:  req.DisplayOrder,
	}
	if req.Pricing != nil {
		cmd.Pricing = &services.TierPriceInput{
			Wholesale:  req.Pricing.Wholesale,
			Retailer:   req.Pricing.Retailer,
			ChainStore: req.Pricing.ChainStore,
			Franchise:  req.Pricing.Franchise,
		}
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildAdminProductPayload(product)})
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productId")); err != nil {
		writeProductError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importRowRequest struct {
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Price         int64               `json:"price"`
	CostPrice     int64               `json:"cost_price"`
	Pricing       *tierPricingPayload `json:"pricing"`
	PercentOfCost map[string]float64  `json:"percent_of_cost"`
	CategoryID    string              `json:"category_id"`
	SubCategoryID string              `json:"sub_category_id"`
	BrandID       string              `json:"brand_id"`
	Stock         int64               `json:"stock"`
	SKU           string              `json:"sku"`
	Tags          []string            `json:"tags"`
	Published     bool                `json:"published"`
}

func (h *ProductHandlers) importProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Rows []importRowRequest `json:"rows"`
	}
	if err := decodeJSONBody(r, maxImportBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if len(req.Rows) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rows is required", http.StatusBadRequest))
		return
	}

	cmd := services.ImportProductsCommand{Rows: make([]services.ImportRow, 0, len(req.Rows))}
	for _, row := range req.Rows {
		imported := services.ImportRow{
			Name:          row.Name,
			Description:   row.Description,
			Price:         row.Price,
			CostPrice:     row.CostPrice,
			CategoryID:    row.CategoryID,
			SubCategoryID: row.SubCategoryID,
			BrandID:       row.BrandID,
			Stock:         row.Stock,
			SKU:           row.SKU,
			Tags:          row.Tags,
			Published:     row.Published,
		}
		if row.Pricing != nil {
			imported.Pricing = services.TierPriceInput{
				Wholesale:  row.Pricing.Wholesale,
				Retailer:   row.Pricing.Retailer,
				ChainStore: row.Pricing.ChainStore,
				Franchise:  row.Pricing.Franchise,
			}
		}
		if len(row.PercentOfCost) > 0 {
			imported.PercentOfCost = make(map[services.Tier]float64, len(row.PercentOfCost))
			for tier, pct := range row.PercentOfCost {
				imported.PercentOfCost[domain.TierForRole(tier)] = pct
			}
		}
		cmd.Rows = append(cmd.Rows, imported)
	}

	report, err := h.catalog.ImportProducts(ctx, cmd)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	rowErrors := make([]map[string]any, 0, len(report.Errors))
	for _, rowErr := range report.Errors {
		rowErrors = append(rowErrors, map[string]any{
			"row":     rowErr.Row,
			"message": rowErr.Message,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"created": report.Created,
		"updated": report.Updated,
		"errors":  rowErrors,
	})
}

type productPayload struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	ProductCode   string            `json:"product_code,omitempty"`
	Description   string            `json:"description,omitempty"`
	UnitPrice     int64             `json:"unit_price"`
	Tier          services.Tier     `json:"tier"`
	CategoryID    string            `json:"category_id,omitempty"`
	SubCategoryID string            `json:"sub_category_id,omitempty"`
	BrandID       string            `json:"brand_id,omitempty"`
	Stock         int64             `json:"stock"`
	SKU           string            `json:"sku,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	ImageURL      string            `json:"image_url,omitempty"`
	DisplayOrder  int               `json:"display_order"`
	CreatedAt     string            `json:"created_at,omitempty"`
	UpdatedAt     string            `json:"updated_at,omitempty"`
}

func buildProductPayload(priced services.PricedProduct) productPayload {
	p := priced.Product
	return productPayload{
		ID:            p.ID,
		Name:          p.Name,
		ProductCode:   p.ProductCode,
		Description:   p.Description,
		UnitPrice:     priced.UnitPrice,
		Tier:          priced.Tier,
		CategoryID:    p.CategoryID,
		SubCategoryID: p.SubCategoryID,
		BrandID:       p.BrandID,
		Stock:         p.Stock,
		SKU:           p.SKU,
		Tags:          p.Tags,
		Attributes:    p.Attributes,
		ImageURL:      p.ImageURL,
		DisplayOrder:  p.DisplayOrder,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

func buildProductPayloads(items []services.PricedProduct) []productPayload {
	payloads := make([]productPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, buildProductPayload(item))
	}
	return payloads
}

// adminProductPayload includes the full pricing schedule and curation flags,
// which public responses never expose.
type adminProductPayload struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	ProductCode   string             `json:"product_code,omitempty"`
	Description   string             `json:"description,omitempty"`
	Price         int64              `json:"price"`
	CostPrice     int64              `json:"cost_price,omitempty"`
	Pricing       tierPricingPayload `json:"pricing"`
	CategoryID    string             `json:"category_id,omitempty"`
	SubCategoryID string             `json:"sub_category_id,omitempty"`
	BrandID       string             `json:"brand_id,omitempty"`
	Stock         int64              `json:"stock"`
	SKU           string             `json:"sku,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	Attributes    map[string]string  `json:"attributes,omitempty"`
	ImageURL      string             `json:"image_url,omitempty"`
	Published     bool               `json:"published"`
	Featured      bool               `json:"featured"`
	MostPopular   bool               `json:"most_popular"`
	MostSold      bool               `json:"most_sold"`
	DisplayOrder  int                `json:"display_order"`
	CreatedAt     string             `json:"created_at,omitempty"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
}

func buildAdminProductPayload(p services.Product) adminProductPayload {
	return adminProductPayload{
		ID:          p.ID,
		Name:        p.Name,
		ProductCode: p.ProductCode,
		Description: p.Description,
		Price:       p.Price,
		CostPrice:   p.CostPrice,
		Pricing: tierPricingPayload{
			Wholesale:  p.Pricing.Wholesale.Price,
			Retailer:   p.Pricing.Retailer.Price,
			ChainStore: p.Pricing.ChainStore.Price,
			Franchise:  p.Pricing.Franchise.Price,
		},
		CategoryID:    p.CategoryID,
		SubCategoryID: p.SubCategoryID,
		BrandID:       p.BrandID,
		Stock:         p.Stock,
		SKU:           p.SKU,
		Tags:          p.Tags,
		Attributes:    p.Attributes,
		ImageURL:      p.ImageURL,
		Published:     p.Published,
		Featured:      p.Featured,
		MostPopular:   p.MostPopular,
		MostSold:      p.MostSold,
		DisplayOrder:  p.DisplayOrder,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

func writeProductError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductDuplicateName):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_product_name", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrProductDuplicateSKU):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_sku", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrProductConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", "product has been modified; retry", http.StatusConflict))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCategoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog operation failed", http.StatusInternalServerError))
	}
}
