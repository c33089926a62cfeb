package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/platform/cache"
	"github.com/meridian-commerce/api/internal/platform/textutil"
	"github.com/meridian-commerce/api/internal/repositories"
)

var (
	errCatalogProductsRequired   = errors.New("catalog service: product repository is required")
	errCatalogCategoriesRequired = errors.New("catalog service: category repository is required")
	errCatalogCountersRequired   = errors.New("catalog service: counter repository is required")
	errCatalogClockRequired      = errors.New("catalog service: clock is required")
)

// ErrProductInvalidInput indicates the caller supplied invalid input.
var ErrProductInvalidInput = errors.New("catalog service: invalid input")

// ErrProductNotFound indicates the requested product does not exist.
var ErrProductNotFound = errors.New("catalog service: not found")

// ErrProductConflict indicates the product could not be written due to a competing state.
var ErrProductConflict = errors.New("catalog service: conflict")

// ErrProductUnavailable indicates the backend rejected or could not serve the request.
var ErrProductUnavailable = errors.New("catalog service: unavailable")

// ErrProductDuplicateName indicates the product name is already taken.
var ErrProductDuplicateName = errors.New("catalog service: duplicate product name")

// ErrProductDuplicateSKU indicates the SKU is already taken.
var ErrProductDuplicateSKU = errors.New("catalog service: duplicate sku")

const (
	specialSetLimit           = 10
	defaultSpecialSetCacheTTL = 5 * time.Minute
	productCodeCounter        = "products"

	flagFeatured    = "featured"
	flagMostPopular = "mostPopular"
	flagMostSold    = "mostSold"
)

// CatalogServiceDeps wires the repositories and collaborators for product
// catalog operations.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Brands      repositories.BrandRepository
	Counters    repositories.CounterRepository
	Notifier    NotificationDispatcher
	Clock       func() time.Time
	CacheTTL    time.Duration
	Logger      EventLogger
	IDGenerator func() string
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	brands     repositories.BrandRepository
	counters   repositories.CounterRepository
	notifier   NotificationDispatcher
	now        func() time.Time
	newID      func() string
	logger     EventLogger
	sanitizer  *bluemonday.Policy

	specialCache *cache.Store[domain.SpecialSets]
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errCatalogProductsRequired
	}
	if deps.Categories == nil {
		return nil, errCatalogCategoriesRequired
	}
	if deps.Counters == nil {
		return nil, errCatalogCountersRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultSpecialSetCacheTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	now := func() time.Time { return deps.Clock().UTC() }
	return &catalogService{
		products:     deps.Products,
		categories:   deps.Categories,
		brands:       deps.Brands,
		counters:     deps.Counters,
		notifier:     deps.Notifier,
		now:          now,
		newID:        idGen,
		logger:       logger,
		sanitizer:    bluemonday.UGCPolicy(),
		specialCache: cache.New[domain.SpecialSets](ttl, now),
	}, nil
}

// CreateProduct validates references and uniqueness, assigns a short product
// code, and slots the product into its ordering scope.
func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	switch {
	case name == "":
		return Product{}, fmt.Errorf("%w: name is required", ErrProductInvalidInput)
	case strings.TrimSpace(cmd.Description) == "":
		return Product{}, fmt.Errorf("%w: description is required", ErrProductInvalidInput)
	case strings.TrimSpace(cmd.CategoryID) == "":
		return Product{}, fmt.Errorf("%w: category is required", ErrProductInvalidInput)
	case cmd.Price <= 0:
		return Product{}, fmt.Errorf("%w: price must be positive", ErrProductInvalidInput)
	case cmd.Stock < 0:
		return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrProductInvalidInput)
	}

	pricing := pricingTableFromInput(cmd.Pricing)
	if !pricing.Complete() {
		return Product{}, fmt.Errorf("%w: all four tier prices must be positive", ErrProductInvalidInput)
	}

	if err := s.validateReferences(ctx, cmd.CategoryID, cmd.SubCategoryID, cmd.BrandID); err != nil {
		return Product{}, err
	}
	if err := s.checkNameAvailable(ctx, name, ""); err != nil {
		return Product{}, err
	}
	sku := strings.TrimSpace(cmd.SKU)
	if sku != "" {
		if err := s.checkSKUAvailable(ctx, sku, ""); err != nil {
			return Product{}, err
		}
	}

	code, err := s.nextProductCode(ctx)
	if err != nil {
		return Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:            s.newID(),
		Name:          name,
		ProductCode:   code,
		Description:   s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		Price:         cmd.Price,
		CostPrice:     cmd.CostPrice,
		Pricing:       pricing,
		CategoryID:    strings.TrimSpace(cmd.CategoryID),
		SubCategoryID: strings.TrimSpace(cmd.SubCategoryID),
		BrandID:       strings.TrimSpace(cmd.BrandID),
		Stock:         cmd.Stock,
		SKU:           sku,
		Tags:          normalizeTags(cmd.Tags),
		Attributes:    textutil.NormalizeStringMap(cmd.Attributes),
		ImageURL:      strings.TrimSpace(cmd.ImageURL),
		Published:     cmd.Published,
		Featured:      cmd.Featured,
		MostPopular:   cmd.MostPopular,
		MostSold:      cmd.MostSold,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	order, err := s.assignDisplayOrder(ctx, product.OrderingScope(), cmd.DisplayOrder, now)
	if err != nil {
		return Product{}, err
	}
	product.DisplayOrder = order

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}

	if product.Featured || product.MostPopular || product.MostSold {
		s.specialCache.InvalidateAll()
	}
	return product, nil
}

// UpdateProduct applies partial field changes. Display-order and scope
// changes cascade through the affected sibling groups; a stock transition
// from zero to positive emits a best-effort restock notification.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	oldScope := product.OrderingScope()
	oldOrder := product.DisplayOrder
	oldStock := product.Stock
	flagsBefore := [4]bool{product.Featured, product.MostPopular, product.MostSold, product.Published}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: name cannot be empty", ErrProductInvalidInput)
		}
		if !strings.EqualFold(name, product.Name) {
			if err := s.checkNameAvailable(ctx, name, product.ID); err != nil {
				return Product{}, err
			}
		}
		product.Name = name
	}
	if cmd.Description != nil {
		description := strings.TrimSpace(*cmd.Description)
		if description == "" {
			return Product{}, fmt.Errorf("%w: description cannot be empty", ErrProductInvalidInput)
		}
		product.Description = s.sanitizer.Sanitize(description)
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return Product{}, fmt.Errorf("%w: price must be positive", ErrProductInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.CostPrice != nil {
		product.CostPrice = *cmd.CostPrice
	}
	if cmd.Pricing != nil {
		pricing := pricingTableFromInput(*cmd.Pricing)
		if !pricing.Complete() {
			return Product{}, fmt.Errorf("%w: all four tier prices must be positive", ErrProductInvalidInput)
		}
		product.Pricing = pricing
	}
	if cmd.SKU != nil {
		sku := strings.TrimSpace(*cmd.SKU)
		if sku != "" && !strings.EqualFold(sku, product.SKU) {
			if err := s.checkSKUAvailable(ctx, sku, product.ID); err != nil {
				return Product{}, err
			}
		}
		product.SKU = sku
	}
	if cmd.CategoryID != nil || cmd.SubCategoryID != nil {
		categoryID := product.CategoryID
		subCategoryID := product.SubCategoryID
		if cmd.CategoryID != nil {
			categoryID = strings.TrimSpace(*cmd.CategoryID)
		}
		if cmd.SubCategoryID != nil {
			subCategoryID = strings.TrimSpace(*cmd.SubCategoryID)
		}
		if categoryID == "" {
			return Product{}, fmt.Errorf("%w: category is required", ErrProductInvalidInput)
		}
		if err := s.validateReferences(ctx, categoryID, subCategoryID, ""); err != nil {
			return Product{}, err
		}
		product.CategoryID = categoryID
		product.SubCategoryID = subCategoryID
	}
	if cmd.BrandID != nil {
		brandID := strings.TrimSpace(*cmd.BrandID)
		if brandID != "" {
			if err := s.validateReferences(ctx, product.CategoryID, "", brandID); err != nil {
				return Product{}, err
			}
		}
		product.BrandID = brandID
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrProductInvalidInput)
		}
		product.Stock = *cmd.Stock
	}
	if cmd.Tags != nil {
		product.Tags = normalizeTags(cmd.Tags)
	}
	if cmd.Attributes != nil {
		product.Attributes = textutil.NormalizeStringMap(cmd.Attributes)
	}
	if cmd.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*cmd.ImageURL)
	}
	if cmd.Published != nil {
		product.Published = *cmd.Published
	}
	if cmd.Featured != nil {
		product.Featured = *cmd.Featured
	}
	if cmd.MostPopular != nil {
		product.MostPopular = *cmd.MostPopular
	}
	if cmd.MostSold != nil {
		product.MostSold = *cmd.MostSold
	}

	now := s.now()
	newScope := product.OrderingScope()
	switch {
	case newScope != oldScope:
		// The new scope governs the cascade; the vacated scope is renumbered
		// afterwards.
		order, err := s.assignDisplayOrder(ctx, newScope, cmd.DisplayOrder, now)
		if err != nil {
			return Product{}, err
		}
		product.DisplayOrder = order
	case cmd.DisplayOrder != nil && *cmd.DisplayOrder != oldOrder:
		siblings, err := s.products.ListByScope(ctx, oldScope)
		if err != nil {
			return Product{}, s.translateRepoError(err)
		}
		requested := *cmd.DisplayOrder
		if requested < 1 || requested > len(siblings) {
			return Product{}, fmt.Errorf("%w: display order must be between 1 and %d", ErrProductInvalidInput, len(siblings))
		}
		if err := s.moveWithinScope(ctx, siblings, product.ID, oldOrder, requested, now); err != nil {
			return Product{}, err
		}
		product.DisplayOrder = requested
	}

	product.UpdatedAt = now
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}

	if newScope != oldScope {
		if err := s.renumberScope(ctx, oldScope, now); err != nil {
			s.logger(ctx, "catalog.scope_renumber_failed", map[string]any{"scope": oldScope, "error": err.Error()})
		}
	}

	flagsAfter := [4]bool{product.Featured, product.MostPopular, product.MostSold, product.Published}
	if flagsBefore != flagsAfter {
		s.specialCache.InvalidateAll()
	}

	if oldStock == 0 && product.Stock > 0 {
		s.notifyRestock(ctx, product)
	}
	return product, nil
}

// DeleteProduct hard-deletes the product and its variations, then renumbers
// the vacated scope. The renumber is a best-effort repair: its failure never
// rolls back the delete.
func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	product, err := s.products.FindByID(ctx, trimmed)
	if err != nil {
		return s.translateRepoError(err)
	}

	variants, err := s.products.ListVariants(ctx, product.ID)
	if err != nil {
		return s.translateRepoError(err)
	}
	for _, variant := range variants {
		if err := s.products.Delete(ctx, variant.ID); err != nil {
			return s.translateRepoError(err)
		}
	}
	if err := s.products.Delete(ctx, product.ID); err != nil {
		return s.translateRepoError(err)
	}

	now := s.now()
	if err := s.renumberScope(ctx, product.OrderingScope(), now); err != nil {
		s.logger(ctx, "catalog.scope_renumber_failed", map[string]any{"scope": product.OrderingScope(), "error": err.Error()})
	}

	if product.Featured || product.MostPopular || product.MostSold {
		s.specialCache.InvalidateAll()
	}
	return nil
}

// GetProduct returns one product resolved to the caller's tier price.
func (s *catalogService) GetProduct(ctx context.Context, productID string, tier Tier) (PricedProduct, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return PricedProduct{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	product, err := s.products.FindByID(ctx, trimmed)
	if err != nil {
		return PricedProduct{}, s.translateRepoError(err)
	}
	return priceProduct(product, tier), nil
}

// ListProducts filters the published catalog. A category filter implicitly
// includes the whole descendant subtree, and free-text search requires every
// keyword to match.
func (s *catalogService) ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[PricedProduct], error) {
	filter := repositories.ProductSearchFilter{
		BrandID:    strings.TrimSpace(query.BrandID),
		Tags:       normalizeTags(query.Tags),
		Keywords:   textutil.FoldKeywords(query.Search),
		Pagination: query.Pagination,
	}

	if categoryID := strings.TrimSpace(query.CategoryID); categoryID != "" {
		ids, err := s.expandCategorySubtree(ctx, categoryID)
		if err != nil {
			return domain.CursorPage[PricedProduct]{}, err
		}
		filter.CategoryIDs = ids
	}

	page, err := s.products.Search(ctx, filter)
	if err != nil {
		return domain.CursorPage[PricedProduct]{}, s.translateRepoError(err)
	}

	priced := make([]PricedProduct, 0, len(page.Items))
	for _, product := range page.Items {
		priced = append(priced, priceProduct(product, query.Tier))
	}
	return domain.CursorPage[PricedProduct]{Items: priced, NextPageToken: page.NextPageToken}, nil
}

// SpecialSets returns the three curated product lists resolved to one tier.
// The result is cached per tier; any flag or publish change on any product
// invalidates every cached tier.
func (s *catalogService) SpecialSets(ctx context.Context, tier Tier) (SpecialSets, error) {
	key := string(tier)
	if cached, ok := s.specialCache.Get(key); ok {
		return cached, nil
	}

	sets := domain.SpecialSets{Tier: tier}
	for _, entry := range []struct {
		flag string
		dst  *[]PricedProduct
	}{
		{flagFeatured, &sets.Featured},
		{flagMostPopular, &sets.MostPopular},
		{flagMostSold, &sets.MostSold},
	} {
		products, err := s.products.ListFlagged(ctx, entry.flag, specialSetLimit)
		if err != nil {
			return SpecialSets{}, s.translateRepoError(err)
		}
		priced := make([]PricedProduct, 0, len(products))
		for _, product := range products {
			priced = append(priced, priceProduct(product, tier))
		}
		*entry.dst = priced
	}

	s.specialCache.Put(key, sets)
	return sets, nil
}

// ImportProducts runs a bulk create/update. Rows may derive tier prices from
// cost via percentages; failures are collected per row and never abort the
// remainder of the batch.
func (s *catalogService) ImportProducts(ctx context.Context, cmd ImportProductsCommand) (ImportReport, error) {
	if len(cmd.Rows) == 0 {
		return ImportReport{}, fmt.Errorf("%w: no rows to import", ErrProductInvalidInput)
	}

	report := ImportReport{}
	for i, row := range cmd.Rows {
		created, err := s.importRow(ctx, row)
		if err != nil {
			report.Errors = append(report.Errors, ImportRowError{Row: i + 1, Message: err.Error()})
			continue
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}
	return report, nil
}

func (s *catalogService) importRow(ctx context.Context, row ImportRow) (bool, error) {
	pricing := row.Pricing
	for tier, percent := range row.PercentOfCost {
		derived := domain.DerivePriceFromPercent(row.CostPrice, percent)
		if derived <= 0 {
			return false, fmt.Errorf("cannot derive %s price from cost %d and percent %.2f", tier, row.CostPrice, percent)
		}
		switch tier {
		case domain.TierWholesale:
			pricing.Wholesale = derived
		case domain.TierRetailer:
			pricing.Retailer = derived
		case domain.TierChainStore:
			pricing.ChainStore = derived
		case domain.TierFranchise:
			pricing.Franchise = derived
		}
	}

	var existing domain.Product
	var found bool
	if sku := strings.TrimSpace(row.SKU); sku != "" {
		product, err := s.products.FindBySKU(ctx, sku)
		switch {
		case err == nil:
			existing, found = product, true
		case !isRepoNotFound(err):
			return false, s.translateRepoError(err)
		}
	}
	if !found {
		product, err := s.products.FindByName(ctx, strings.TrimSpace(row.Name))
		switch {
		case err == nil:
			existing, found = product, true
		case !isRepoNotFound(err):
			return false, s.translateRepoError(err)
		}
	}

	if !found {
		_, err := s.CreateProduct(ctx, CreateProductCommand{
			Name:          row.Name,
			Description:   row.Description,
			Price:         row.Price,
			CostPrice:     row.CostPrice,
			Pricing:       pricing,
			CategoryID:    row.CategoryID,
			SubCategoryID: row.SubCategoryID,
			BrandID:       row.BrandID,
			Stock:         row.Stock,
			SKU:           row.SKU,
			Tags:          row.Tags,
			Published:     row.Published,
		})
		return true, err
	}

	table := pricingTableFromInput(pricing)
	_, err := s.UpdateProduct(ctx, UpdateProductCommand{
		ProductID: existing.ID,
		Price:     &row.Price,
		CostPrice: &row.CostPrice,
		Pricing: &TierPriceInput{
			Wholesale:  table.Wholesale.Price,
			Retailer:   table.Retailer.Price,
			ChainStore: table.ChainStore.Price,
			Franchise:  table.Franchise.Price,
		},
		Stock:     &row.Stock,
		Published: &row.Published,
	})
	return false, err
}

func (s *catalogService) assignDisplayOrder(ctx context.Context, scopeID string, requested *int, now time.Time) (int, error) {
	siblings, err := s.products.ListByScope(ctx, scopeID)
	if err != nil {
		return 0, s.translateRepoError(err)
	}
	if requested == nil {
		return len(siblings) + 1, nil
	}
	want := *requested
	if want < 1 || want > len(siblings)+1 {
		return 0, fmt.Errorf("%w: display order must be between 1 and %d", ErrProductInvalidInput, len(siblings)+1)
	}
	sortProductsByOrder(siblings)
	for i := len(siblings) - 1; i >= 0; i-- {
		if siblings[i].DisplayOrder < want {
			break
		}
		if err := s.products.SetDisplayOrder(ctx, siblings[i].ID, siblings[i].DisplayOrder+1, now); err != nil {
			return 0, s.translateRepoError(err)
		}
	}
	return want, nil
}

func (s *catalogService) moveWithinScope(ctx context.Context, siblings []domain.Product, movedID string, oldPos, newPos int, now time.Time) error {
	sortProductsByOrder(siblings)
	if newPos < oldPos {
		for i := len(siblings) - 1; i >= 0; i-- {
			order := siblings[i].DisplayOrder
			if siblings[i].ID == movedID || order < newPos || order >= oldPos {
				continue
			}
			if err := s.products.SetDisplayOrder(ctx, siblings[i].ID, order+1, now); err != nil {
				return s.translateRepoError(err)
			}
		}
		return nil
	}
	for _, sibling := range siblings {
		order := sibling.DisplayOrder
		if sibling.ID == movedID || order <= oldPos || order > newPos {
			continue
		}
		if err := s.products.SetDisplayOrder(ctx, sibling.ID, order-1, now); err != nil {
			return s.translateRepoError(err)
		}
	}
	return nil
}

func (s *catalogService) renumberScope(ctx context.Context, scopeID string, now time.Time) error {
	siblings, err := s.products.ListByScope(ctx, scopeID)
	if err != nil {
		return s.translateRepoError(err)
	}
	sortProductsByOrder(siblings)
	for i, sibling := range siblings {
		want := i + 1
		if sibling.DisplayOrder == want {
			continue
		}
		if err := s.products.SetDisplayOrder(ctx, sibling.ID, want, now); err != nil {
			return s.translateRepoError(err)
		}
	}
	return nil
}

func (s *catalogService) expandCategorySubtree(ctx context.Context, categoryID string) ([]string, error) {
	ids := []string{categoryID}
	frontier := []string{categoryID}
	for depth := 0; depth < domain.MaxCategoryDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			children, err := s.categories.ListChildren(ctx, id)
			if err != nil {
				return nil, s.translateRepoError(err)
			}
			for _, child := range children {
				ids = append(ids, child.ID)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	return ids, nil
}

func (s *catalogService) validateReferences(ctx context.Context, categoryID, subCategoryID, brandID string) error {
	if categoryID = strings.TrimSpace(categoryID); categoryID != "" {
		if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: category %s", ErrProductNotFound, categoryID)
			}
			return s.translateRepoError(err)
		}
	}
	if subCategoryID = strings.TrimSpace(subCategoryID); subCategoryID != "" {
		if _, err := s.categories.FindByID(ctx, subCategoryID); err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: subcategory %s", ErrProductNotFound, subCategoryID)
			}
			return s.translateRepoError(err)
		}
	}
	if brandID = strings.TrimSpace(brandID); brandID != "" {
		if s.brands == nil {
			return fmt.Errorf("%w: brand validation unavailable", ErrProductUnavailable)
		}
		if _, err := s.brands.FindByID(ctx, brandID); err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: brand %s", ErrProductNotFound, brandID)
			}
			return s.translateRepoError(err)
		}
	}
	return nil
}

func (s *catalogService) checkNameAvailable(ctx context.Context, name, selfID string) error {
	existing, err := s.products.FindByName(ctx, name)
	switch {
	case err == nil:
		if existing.ID != selfID {
			return fmt.Errorf("%w: %q", ErrProductDuplicateName, name)
		}
		return nil
	case isRepoNotFound(err):
		return nil
	default:
		return s.translateRepoError(err)
	}
}

func (s *catalogService) checkSKUAvailable(ctx context.Context, sku, selfID string) error {
	existing, err := s.products.FindBySKU(ctx, sku)
	switch {
	case err == nil:
		if existing.ID != selfID {
			return fmt.Errorf("%w: %q", ErrProductDuplicateSKU, sku)
		}
		return nil
	case isRepoNotFound(err):
		return nil
	default:
		return s.translateRepoError(err)
	}
}

func (s *catalogService) nextProductCode(ctx context.Context) (string, error) {
	value, err := s.counters.Next(ctx, productCodeCounter, 1)
	if err != nil {
		return "", s.translateRepoError(err)
	}
	return fmt.Sprintf("P%06d", value), nil
}

// notifyRestock emits the restock notification for a product whose stock just
// came back. Fire-and-forget: failures are logged and never propagated.
func (s *catalogService) notifyRestock(ctx context.Context, product domain.Product) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.SendTransactional(ctx, "", NotificationRestock, map[string]any{
		"productId":   product.ID,
		"productName": product.Name,
		"stock":       product.Stock,
	})
	if err != nil {
		s.logger(ctx, "catalog.restock_notify_failed", map[string]any{"productId": product.ID, "error": err.Error()})
		return
	}
	s.logger(ctx, "catalog.restock_notified", map[string]any{"productId": product.ID})
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrProductNotFound
		case repoErr.IsConflict():
			return ErrProductConflict
		}
	}
	return ErrProductUnavailable
}

func pricingTableFromInput(input TierPriceInput) domain.PricingTable {
	return domain.PricingTable{
		Wholesale:  domain.TierPrice{Price: input.Wholesale},
		Retailer:   domain.TierPrice{Price: input.Retailer},
		ChainStore: domain.TierPrice{Price: input.ChainStore},
		Franchise:  domain.TierPrice{Price: input.Franchise},
	}
}

func priceProduct(product domain.Product, tier Tier) PricedProduct {
	return PricedProduct{
		Product:   product,
		Tier:      tier,
		UnitPrice: domain.PriceForTier(product, tier),
	}
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.ToLower(strings.TrimSpace(tag))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

func sortProductsByOrder(products []domain.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].DisplayOrder < products[j].DisplayOrder
	})
}
