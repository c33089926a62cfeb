package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/meridian-commerce/api/internal/domain"
	pfirestore "github.com/meridian-commerce/api/internal/platform/firestore"
	"github.com/meridian-commerce/api/internal/platform/pagination"
	"github.com/meridian-commerce/api/internal/repositories"
)

const productCollection = "products"

type productDocument struct {
	Name          string            `firestore:"name"`
	NameFolded    string            `firestore:"nameFolded"`
	ProductCode   string            `firestore:"productCode"`
	Description   string            `firestore:"description"`
	Price         int64             `firestore:"price"`
	CostPrice     int64             `firestore:"costPrice"`
	Pricing       pricingDocument   `firestore:"pricing"`
	CategoryID    string            `firestore:"categoryId"`
	SubCategoryID string            `firestore:"subCategoryId,omitempty"`
	BrandID       string            `firestore:"brandId,omitempty"`
	Stock         int64             `firestore:"stock"`
	SKU           string            `firestore:"sku,omitempty"`
	Tags          []string          `firestore:"tags,omitempty"`
	Keywords      []string          `firestore:"keywords,omitempty"`
	Attributes    map[string]string `firestore:"attributes,omitempty"`
	ImageURL      string            `firestore:"imageUrl,omitempty"`
	Published     bool              `firestore:"published"`
	Featured      bool              `firestore:"featured"`
	MostPopular   bool              `firestore:"mostPopular"`
	MostSold      bool              `firestore:"mostSold"`
	DisplayOrder  int               `firestore:"displayOrder"`
	OrderingScope string            `firestore:"orderingScope"`
	VariantOfID   string            `firestore:"variantOfId,omitempty"`
	IsDeleted     bool              `firestore:"isDeleted"`
	CreatedAt     time.Time         `firestore:"createdAt"`
	UpdatedAt     time.Time         `firestore:"updatedAt"`
}

type pricingDocument struct {
	Wholesale  int64 `firestore:"wholesale"`
	Retailer   int64 `firestore:"retailer"`
	ChainStore int64 `firestore:"chainStore"`
	Franchise  int64 `firestore:"franchise"`
}

// ProductRepository persists catalog products in Firestore, including the
// transactional stock mutations the order state machine depends on.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// Insert writes a new product document keyed by its id.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Set(ctx, product.ID, fromDomainProduct(product))
	return err
}

// Update overwrites an existing product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	return r.Insert(ctx, product)
}

// Delete removes the product document entirely.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

// FindByID loads one product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc.ID, doc.Data), nil
}

// FindByName locates a non-deleted product by folded name.
func (r *ProductRepository) FindByName(ctx context.Context, name string) (domain.Product, error) {
	return r.findOne(ctx, "products.findByName", func(q firestore.Query) firestore.Query {
		return q.Where("nameFolded", "==", strings.ToLower(strings.TrimSpace(name))).
			Where("isDeleted", "==", false).
			Limit(1)
	})
}

// FindBySKU locates a non-deleted product by SKU.
func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (domain.Product, error) {
	return r.findOne(ctx, "products.findBySku", func(q firestore.Query) firestore.Query {
		return q.Where("sku", "==", strings.TrimSpace(sku)).
			Where("isDeleted", "==", false).
			Limit(1)
	})
}

// ListByScope returns the published, non-deleted products in one ordering
// scope, ordered by display order.
func (r *ProductRepository) ListByScope(ctx context.Context, scopeID string) ([]domain.Product, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderingScope", "==", strings.TrimSpace(scopeID)).
			Where("isDeleted", "==", false).
			Where("published", "==", true).
			OrderBy("displayOrder", firestore.Asc)
	})
}

// ListByCategories returns the non-deleted products referencing any of the
// given category ids. Firestore caps "in" clauses at 30 values, so the ids are
// chunked.
func (r *ProductRepository) ListByCategories(ctx context.Context, categoryIDs []string) ([]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}
	var products []domain.Product
	for _, chunk := range chunkStrings(categoryIDs, 30) {
		byCategory, err := r.list(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("categoryId", "in", chunk).Where("isDeleted", "==", false)
		})
		if err != nil {
			return nil, err
		}
		bySubCategory, err := r.list(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("subCategoryId", "in", chunk).Where("isDeleted", "==", false)
		})
		if err != nil {
			return nil, err
		}
		products = append(products, byCategory...)
		products = dedupeProducts(append(products, bySubCategory...))
	}
	return products, nil
}

// ListFlagged returns up to limit published products carrying the named
// curation flag.
func (r *ProductRepository) ListFlagged(ctx context.Context, flag string, limit int) ([]domain.Product, error) {
	switch flag {
	case "featured", "mostPopular", "mostSold":
	default:
		return nil, fmt.Errorf("product repository: unknown flag %q", flag)
	}
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		query := q.Where(flag, "==", true).
			Where("isDeleted", "==", false).
			Where("published", "==", true)
		if limit > 0 {
			query = query.Limit(limit)
		}
		return query
	})
}

// ListVariants returns products whose VariantOfID references parentID.
func (r *ProductRepository) ListVariants(ctx context.Context, parentID string) ([]domain.Product, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("variantOfId", "==", strings.TrimSpace(parentID))
	})
}

// Search filters the catalog. Keyword terms are matched via the precomputed
// keywords array, one array-contains clause per page pass; remaining terms are
// applied in memory since Firestore allows a single array-contains per query.
func (r *ProductRepository) Search(ctx context.Context, filter repositories.ProductSearchFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		query := q
		if !filter.IncludeHidden {
			query = query.Where("published", "==", true)
		}
		query = query.Where("isDeleted", "==", false)
		if len(filter.CategoryIDs) == 1 {
			query = query.Where("categoryId", "==", filter.CategoryIDs[0])
		} else if len(filter.CategoryIDs) > 1 && len(filter.CategoryIDs) <= 30 {
			query = query.Where("categoryId", "in", filter.CategoryIDs)
		}
		if filter.BrandID != "" {
			query = query.Where("brandId", "==", filter.BrandID)
		}
		if len(filter.Keywords) > 0 {
			query = query.Where("keywords", "array-contains", filter.Keywords[0])
		}
		if filter.SortByNewest {
			query = query.OrderBy("createdAt", firestore.Desc)
		}
		query = query.OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		// Over-fetch one page so the in-memory filters below still tend to
		// fill the requested size.
		return query.Limit(pageSize*2 + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{}
	var lastID string
	for _, doc := range docs {
		lastID = doc.ID
		product := toDomainProduct(doc.ID, doc.Data)
		if !matchesSearchFilter(product, doc.Data, filter) {
			continue
		}
		page.Items = append(page.Items, product)
		if len(page.Items) == pageSize {
			break
		}
	}

	if len(page.Items) == pageSize && len(docs) > pageSize {
		token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{lastID}})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// SetDisplayOrder writes a single product's display order within its scope.
func (r *ProductRepository) SetDisplayOrder(ctx context.Context, productID string, displayOrder int, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	_, err := r.base.Update(ctx, productID, []firestore.Update{
		{Path: "displayOrder", Value: displayOrder},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

// DecrementStock atomically decrements stock for every line inside one
// transaction. Each line is guarded by stock >= quantity; any violation
// aborts the transaction so nothing is written.
func (r *ProductRepository) DecrementStock(ctx context.Context, lines []repositories.StockDecrement, now time.Time) (map[string]int64, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	if len(lines) == 0 {
		return map[string]int64{}, nil
	}

	remaining := make(map[string]int64, len(lines))
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		refs := make([]*firestore.DocumentRef, len(lines))
		stocks := make([]int64, len(lines))

		// Reads first: Firestore transactions require all reads before any
		// write.
		for i, line := range lines {
			ref, err := r.base.DocumentRef(ctx, line.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound,
						fmt.Sprintf("product %s has no stock record", line.ProductID), nil)
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("firestore products decode %s: %w", line.ProductID, err)
			}
			if doc.Stock < line.Quantity {
				return repositories.NewInsufficientStockError(line.ProductID, doc.Stock, line.Quantity)
			}
			refs[i] = ref
			stocks[i] = doc.Stock
		}

		for i, line := range lines {
			newStock := stocks[i] - line.Quantity
			if err := tx.Update(refs[i], []firestore.Update{
				{Path: "stock", Value: newStock},
				{Path: "updatedAt", Value: now.UTC()},
			}); err != nil {
				return err
			}
			remaining[line.ProductID] = newStock
		}
		return nil
	})
	if err != nil {
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) {
			return nil, invErr
		}
		return nil, pfirestore.WrapError("products.decrementStock", err)
	}
	return remaining, nil
}

// SetStock overwrites a product's stock level and returns the previous value.
func (r *ProductRepository) SetStock(ctx context.Context, productID string, stock int64, now time.Time) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("product repository not initialised")
	}
	var previous int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore products decode %s: %w", productID, err)
		}
		previous = doc.Stock
		return tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: stock},
			{Path: "updatedAt", Value: now.UTC()},
		})
	})
	if err != nil {
		return 0, pfirestore.WrapError("products.setStock", err)
	}
	return previous, nil
}

func (r *ProductRepository) findOne(ctx context.Context, op string, build pfirestore.QueryBuilder) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, notFoundError(op)
	}
	return toDomainProduct(docs[0].ID, docs[0].Data), nil
}

func (r *ProductRepository) list(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, toDomainProduct(doc.ID, doc.Data))
	}
	return products, nil
}

// matchesSearchFilter applies the predicates Firestore could not serve
// natively: extra keyword terms, tag membership, and wide category fans that
// exceed the "in" clause cap.
func matchesSearchFilter(product domain.Product, doc productDocument, filter repositories.ProductSearchFilter) bool {
	if len(filter.CategoryIDs) > 30 {
		if !containsString(filter.CategoryIDs, product.CategoryID) && !containsString(filter.CategoryIDs, product.SubCategoryID) {
			return false
		}
	}
	for _, keyword := range filter.Keywords {
		if !containsString(doc.Keywords, keyword) {
			return false
		}
	}
	for _, tag := range filter.Tags {
		if !containsString(product.Tags, tag) {
			return false
		}
	}
	return true
}

func fromDomainProduct(product domain.Product) productDocument {
	return productDocument{
		Name:        strings.TrimSpace(product.Name),
		NameFolded:  strings.ToLower(strings.TrimSpace(product.Name)),
		ProductCode: product.ProductCode,
		Description: product.Description,
		Price:       product.Price,
		CostPrice:   product.CostPrice,
		Pricing: pricingDocument{
			Wholesale:  product.Pricing.Wholesale.Price,
			Retailer:   product.Pricing.Retailer.Price,
			ChainStore: product.Pricing.ChainStore.Price,
			Franchise:  product.Pricing.Franchise.Price,
		},
		CategoryID:    product.CategoryID,
		SubCategoryID: product.SubCategoryID,
		BrandID:       product.BrandID,
		Stock:         product.Stock,
		SKU:           product.SKU,
		Tags:          append([]string(nil), product.Tags...),
		Keywords:      productKeywords(product),
		Attributes:    cloneStringValues(product.Attributes),
		ImageURL:      product.ImageURL,
		Published:     product.Published,
		Featured:      product.Featured,
		MostPopular:   product.MostPopular,
		MostSold:      product.MostSold,
		DisplayOrder:  product.DisplayOrder,
		OrderingScope: product.OrderingScope(),
		VariantOfID:   product.VariantOfID,
		IsDeleted:     product.IsDeleted,
		CreatedAt:     product.CreatedAt.UTC(),
		UpdatedAt:     product.UpdatedAt.UTC(),
	}
}

// productKeywords derives the searchable term set from name, code, sku, and
// tags.
func productKeywords(product domain.Product) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(value string) {
		for _, field := range strings.Fields(strings.ToLower(value)) {
			if _, ok := seen[field]; ok {
				continue
			}
			seen[field] = struct{}{}
			keywords = append(keywords, field)
		}
	}
	add(product.Name)
	add(product.ProductCode)
	add(product.SKU)
	for _, tag := range product.Tags {
		add(tag)
	}
	return keywords
}

func toDomainProduct(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        doc.Name,
		ProductCode: doc.ProductCode,
		Description: doc.Description,
		Price:       doc.Price,
		CostPrice:   doc.CostPrice,
		Pricing: domain.PricingTable{
			Wholesale:  domain.TierPrice{Price: doc.Pricing.Wholesale},
			Retailer:   domain.TierPrice{Price: doc.Pricing.Retailer},
			ChainStore: domain.TierPrice{Price: doc.Pricing.ChainStore},
			Franchise:  domain.TierPrice{Price: doc.Pricing.Franchise},
		},
		CategoryID:    doc.CategoryID,
		SubCategoryID: doc.SubCategoryID,
		BrandID:       doc.BrandID,
		Stock:         doc.Stock,
		SKU:           doc.SKU,
		Tags:          append([]string(nil), doc.Tags...),
		Attributes:    cloneStringValues(doc.Attributes),
		ImageURL:      doc.ImageURL,
		Published:     doc.Published,
		Featured:      doc.Featured,
		MostPopular:   doc.MostPopular,
		MostSold:      doc.MostSold,
		DisplayOrder:  doc.DisplayOrder,
		VariantOfID:   doc.VariantOfID,
		IsDeleted:     doc.IsDeleted,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

func dedupeProducts(products []domain.Product) []domain.Product {
	seen := make(map[string]struct{}, len(products))
	out := products[:0]
	for _, product := range products {
		if _, ok := seen[product.ID]; ok {
			continue
		}
		seen[product.ID] = struct{}{}
		out = append(out, product)
	}
	return out
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func chunkStrings(values []string, size int) [][]string {
	if len(values) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
