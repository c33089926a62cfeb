package repositories

import (
	"context"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Categories() CategoryRepository
	Products() ProductRepository
	Brands() BrandRepository
	Carts() CartRepository
	Orders() OrderRepository
	Requests() RequestRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CategoryRepository persists the category forest. Sibling ordering is owned by
// the service layer; the repository only offers the primitive reads and writes
// the cascade algorithms are built from.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	// FindByNameAtLevel locates a non-deleted category by exact name within one
	// tree level, used for the per-level duplicate-name check.
	FindByNameAtLevel(ctx context.Context, name string, level int) (domain.Category, error)
	// ListChildren returns the non-deleted direct children of parentID ordered
	// by display order. An empty parentID lists root categories.
	ListChildren(ctx context.Context, parentID string) ([]domain.Category, error)
	// ListPublic returns all non-deleted categories outside quarantine ordered
	// by (level, displayOrder).
	ListPublic(ctx context.Context) ([]domain.Category, error)
	// SetDisplayOrder writes a single sibling's display order. Cascades issue
	// one call per affected document on purpose; see the ordering notes in the
	// category service.
	SetDisplayOrder(ctx context.Context, categoryID string, displayOrder int, updatedAt time.Time) error
}

// StockDecrement is one guarded stock mutation line. The repository must
// reject the whole batch when any product's stock is below the requested
// quantity, evaluating the guard and the write in the same transaction.
type StockDecrement struct {
	ProductID string
	Quantity  int64
}

// ProductSearchFilter composes the catalog listing predicate. CategoryIDs is
// the already-expanded subtree of the requested category filter. Keywords must
// all match; the repository may satisfy them with a native text index or a
// multi-field case-insensitive scan.
type ProductSearchFilter struct {
	CategoryIDs   []string
	BrandID       string
	Tags          []string
	Keywords      []string
	IncludeHidden bool
	SortByNewest  bool
	Pagination    domain.Pagination
}

// ProductRepository persists catalog products, including the guarded stock
// mutations the order state machine depends on.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByName(ctx context.Context, name string) (domain.Product, error)
	FindBySKU(ctx context.Context, sku string) (domain.Product, error)
	// ListByScope returns the published, non-deleted products whose ordering
	// scope (subcategory if set, else category) equals scopeID, ordered by
	// display order.
	ListByScope(ctx context.Context, scopeID string) ([]domain.Product, error)
	// ListByCategories returns the non-deleted products whose category or
	// subcategory is any of the given ids, without pagination. Used by the
	// category delete cascade.
	ListByCategories(ctx context.Context, categoryIDs []string) ([]domain.Product, error)
	// ListFlagged returns up to limit published products carrying the named
	// curation flag ("featured", "mostPopular", "mostSold").
	ListFlagged(ctx context.Context, flag string, limit int) ([]domain.Product, error)
	// ListVariants returns products whose VariantOfID references parentID.
	ListVariants(ctx context.Context, parentID string) ([]domain.Product, error)
	Search(ctx context.Context, filter ProductSearchFilter) (domain.CursorPage[domain.Product], error)
	// SetDisplayOrder writes a single product's display order within its scope.
	SetDisplayOrder(ctx context.Context, productID string, displayOrder int, updatedAt time.Time) error
	// DecrementStock atomically decrements stock for every line, guarding each
	// with stock >= quantity inside one transaction. On violation it returns
	// an InventoryError with InventoryErrorInsufficientStock carrying the
	// offending product and the available quantity, and nothing is written.
	DecrementStock(ctx context.Context, lines []StockDecrement, now time.Time) (map[string]int64, error)
	// SetStock overwrites a product's stock level and returns the previous
	// value so callers can detect the 0 -> positive restock edge.
	SetStock(ctx context.Context, productID string, stock int64, now time.Time) (int64, error)
}

// BrandRepository validates brand references on product writes.
type BrandRepository interface {
	FindByID(ctx context.Context, brandID string) (domain.Brand, error)
	List(ctx context.Context) ([]domain.Brand, error)
}

// CartRepository owns cart persistence. Every mutating accessor operates on
// the user's single active cart.
type CartRepository interface {
	// FindActive returns the user's active cart or a not-found error.
	FindActive(ctx context.Context, userID string) (domain.Cart, error)
	Insert(ctx context.Context, cart domain.Cart) error
	Update(ctx context.Context, cart domain.Cart) error
	// Deactivate flips IsActive off, preserving the document for history.
	Deactivate(ctx context.Context, cartID string, deactivatedAt time.Time) error
	// ListAbandoned returns up to limit active, non-empty carts whose last
	// activity predates inactiveSince and whose reminder count is below
	// maxReminders, oldest first.
	ListAbandoned(ctx context.Context, inactiveSince time.Time, maxReminders int, limit int) ([]domain.Cart, error)
}

// OrderListFilter narrows admin and user order listings.
type OrderListFilter struct {
	UserID        string
	Status        []domain.OrderStatus
	Paid          []domain.PaymentState
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Pagination    domain.Pagination
}

// OrderRepository persists order documents.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// RequestRepository persists refund/replacement request documents.
type RequestRepository interface {
	Insert(ctx context.Context, request domain.Request) error
	Update(ctx context.Context, request domain.Request) error
	FindByID(ctx context.Context, requestID string) (domain.Request, error)
	// FindOpenByOrder returns the not-yet-completed request document for an
	// order, if one exists. At most one open request per order is maintained.
	FindOpenByOrder(ctx context.Context, orderID string) (domain.Request, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Request], error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Request], error)
}

// UserRepository stores user profiles; the core reads roles and payment
// customer references from it.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
