package services

import (
	"context"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination     = domain.Pagination
	SortOrder      = domain.SortOrder
	Category       = domain.Category
	Product        = domain.Product
	PricedProduct  = domain.PricedProduct
	SpecialSets    = domain.SpecialSets
	Tier           = domain.Tier
	PricingTable   = domain.PricingTable
	Cart           = domain.Cart
	CartItem       = domain.CartItem
	PricedCart     = domain.PricedCart
	PricedCartItem = domain.PricedCartItem
	Order          = domain.Order
	OrderItem      = domain.OrderItem
	OrderStatus    = domain.OrderStatus
	PaymentState   = domain.PaymentState
	ShippingMethod = domain.ShippingMethod
	Address        = domain.Address
	Request        = domain.Request
	RequestItem    = domain.RequestItem
	RequestType    = domain.RequestType
	UserProfile    = domain.UserProfile

	SystemHealthReport = domain.SystemHealthReport
)

// EventLogger receives structured log events from services. Implementations
// adapt to the process logger; a nil logger is replaced with a no-op.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// CategoryService maintains the category forest and its sibling-ordering
// invariants.
type CategoryService interface {
	Create(ctx context.Context, cmd CreateCategoryCommand) (Category, error)
	Update(ctx context.Context, cmd UpdateCategoryCommand) (Category, error)
	Get(ctx context.Context, categoryID string) (Category, error)
	Reorder(ctx context.Context, categoryID string, direction ReorderDirection) (Category, error)
	Move(ctx context.Context, categoryID string, newParentID string) (Category, error)
	Delete(ctx context.Context, categoryID string) error
	ValidateAndRepairOrdering(ctx context.Context, parentID string) (int, error)
	ListPublic(ctx context.Context) ([]Category, error)
}

// CatalogService owns product records, their placement, ordering, curation
// flags, and stock bookkeeping.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	GetProduct(ctx context.Context, productID string, tier Tier) (PricedProduct, error)
	ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[PricedProduct], error)
	SpecialSets(ctx context.Context, tier Tier) (SpecialSets, error)
	ImportProducts(ctx context.Context, cmd ImportProductsCommand) (ImportReport, error)
}

// CartService manages the user's single active cart and its priced view.
type CartService interface {
	Get(ctx context.Context, userID string, tier Tier) (PricedCart, error)
	Add(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	Replace(ctx context.Context, cmd ReplaceCartItemsCommand) (Cart, error)
	Remove(ctx context.Context, userID string, productID string) (Cart, error)
	Clear(ctx context.Context, userID string) error
}

// OrderService drives the order state machine, coupling status transitions to
// payment capture, stock decrement, and best-effort notifications.
type OrderService interface {
	Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	Accept(ctx context.Context, cmd AcceptOrderCommand) (Order, error)
	Transition(ctx context.Context, cmd TransitionOrderCommand) (Order, error)
	UpdateTracking(ctx context.Context, orderID string, trackingID string) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error)
}

// RequestService tracks refund/replacement dispositions per order line.
type RequestService interface {
	RequestRefund(ctx context.Context, cmd DispositionCommand) (Request, error)
	RequestReplacement(ctx context.Context, cmd DispositionCommand) (Request, error)
	RequestAllEligible(ctx context.Context, cmd BulkDispositionCommand) (Request, error)
	ResolveItem(ctx context.Context, cmd ResolveRequestItemCommand) (Request, error)
	Get(ctx context.Context, requestID string) (Request, error)
	ListByUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Request], error)
	List(ctx context.Context, pager Pagination) (domain.CursorPage[Request], error)
}

// ProfileService reads and maintains user profiles. The tier used for
// pricing is derived from the profile role.
type ProfileService interface {
	Get(ctx context.Context, userID string) (UserProfile, error)
	Update(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
	TierFor(ctx context.Context, userID string) (Tier, error)
}

// SystemService aggregates health and build reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// NotificationKind names a transactional message template.
type NotificationKind string

const (
	NotificationOrderPlaced    NotificationKind = "order_placed"
	NotificationOrderConfirmed NotificationKind = "order_confirmed"
	NotificationOrderDelivered NotificationKind = "order_delivered"
	NotificationOrderCancelled NotificationKind = "order_cancelled"
	NotificationPaymentFailed  NotificationKind = "payment_failed"
	NotificationRestock        NotificationKind = "restock"
	NotificationAdminNewOrder  NotificationKind = "admin_new_order"
)

// NotificationDispatcher delivers transactional messages. It is fire-and-forget
// from the core's perspective: callers log failures and never propagate them.
type NotificationDispatcher interface {
	SendTransactional(ctx context.Context, to string, kind NotificationKind, data map[string]any) error
}

// MailingListSync pushes contact updates to the mailing-list provider,
// best-effort and non-blocking relative to the triggering flow.
type MailingListSync interface {
	UpsertContact(ctx context.Context, profile UserProfile, tag string) error
}

// Command and DTO definitions ------------------------------------------------

// ReorderDirection selects which adjacent sibling a reorder swaps with.
type ReorderDirection string

const (
	ReorderUp   ReorderDirection = "up"
	ReorderDown ReorderDirection = "down"
)

type CreateCategoryCommand struct {
	Name            string
	Title           string
	Description     string
	ImageURL        string
	ParentID        string
	DisplayOrder    *int
	IsRecentlyAdded bool
	HasParts        bool
	ModelNumbers    []string
	Attributes      map[string]string
}

type UpdateCategoryCommand struct {
	CategoryID      string
	Name            *string
	Title           *string
	Description     *string
	ImageURL        *string
	DisplayOrder    *int
	IsRecentlyAdded *bool
	HasParts        *bool
	ModelNumbers    []string
	Attributes      map[string]string
}

type TierPriceInput struct {
	Wholesale  int64
	Retailer   int64
	ChainStore int64
	Franchise  int64
}

type CreateProductCommand struct {
	Name          string
	Description   string
	Price         int64
	CostPrice     int64
	Pricing       TierPriceInput
	CategoryID    string
	SubCategoryID string
	BrandID       string
	Stock         int64
	SKU           string
	Tags          []string
	Attributes    map[string]string
	ImageURL      string
	Published     bool
	Featured      bool
	MostPopular   bool
	MostSold      bool
	DisplayOrder  *int
}

type UpdateProductCommand struct {
	ProductID     string
	Name          *string
	Description   *string
	Price         *int64
	CostPrice     *int64
	Pricing       *TierPriceInput
	CategoryID    *string
	SubCategoryID *string
	BrandID       *string
	Stock         *int64
	SKU           *string
	Tags          []string
	Attributes    map[string]string
	ImageURL      *string
	Published     *bool
	Featured      *bool
	MostPopular   *bool
	MostSold      *bool
	DisplayOrder  *int
}

type ProductListQuery struct {
	CategoryID string
	BrandID    string
	Tags       []string
	Search     string
	Tier       Tier
	Pagination Pagination
}

// ImportRow is one CSV line of a bulk product import. Tier prices may be
// given directly or derived from cost via percentages.
type ImportRow struct {
	Name          string
	Description   string
	Price         int64
	CostPrice     int64
	Pricing       TierPriceInput
	PercentOfCost map[Tier]float64
	CategoryID    string
	SubCategoryID string
	BrandID       string
	Stock         int64
	SKU           string
	Tags          []string
	Published     bool
}

type ImportProductsCommand struct {
	Rows []ImportRow
}

// ImportRowError reports a single rejected import row.
type ImportRowError struct {
	Row     int
	Message string
}

// ImportReport summarises a bulk import run.
type ImportReport struct {
	Created int
	Updated int
	Errors  []ImportRowError
}

type UpdateProfileCommand struct {
	UserID      string
	DisplayName *string
	Email       *string
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int64
}

type ReplaceCartItemsCommand struct {
	UserID string
	Items  []CartItem
}

type PlaceOrderCommand struct {
	UserID           string
	PaymentMethodRef string
	ShippingMethod   ShippingMethod
	ShippingAddress  Address
	BillingAddress   Address
	Discount         int64
}

// AdjustedItem overrides a line's quantity during admin acceptance or
// transition, e.g. for partial fulfillment.
type AdjustedItem struct {
	ProductID string
	Quantity  int64
}

type AcceptOrderCommand struct {
	OrderID       string
	AdjustedItems []AdjustedItem
}

type TransitionOrderCommand struct {
	OrderID          string
	NewStatus        OrderStatus
	AdjustedItems    []AdjustedItem
	AdjustedShipping *int64
}

type DispositionCommand struct {
	UserID    string
	OrderID   string
	ProductID string
	Reason    string
}

type BulkDispositionCommand struct {
	UserID  string
	OrderID string
	Type    RequestType
	Reason  string
}

// ResolveDecision is the admin outcome for a pending request item.
type ResolveDecision string

const (
	ResolveApproved ResolveDecision = "Approved"
	ResolveRejected ResolveDecision = "Rejected"
)

type ResolveRequestItemCommand struct {
	RequestID string
	ProductID string
	Decision  ResolveDecision
	Notes     string
}
