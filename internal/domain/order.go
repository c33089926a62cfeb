package domain

import (
	"time"
)

// Cart is a user's shopping cart. At most one cart per user has
// IsActive=true; order placement deactivates the cart instead of deleting it.
type Cart struct {
	ID                     string
	UserID                 string
	Items                  []CartItem
	IsActive               bool
	LastActivityAt         time.Time
	ReminderSentAt         time.Time
	AbandonedReminderCount int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// CartItem is a single product line in a cart. Quantity is always positive.
type CartItem struct {
	ProductID string
	Quantity  int64
}

// PricedCartItem is a cart line joined against the catalog and resolved to
// the caller's tier. Lines whose product no longer exists carry Error and a
// zero price rather than being dropped.
type PricedCartItem struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64
	LineTotal int64
	Error     string
}

// PricedCart is the fully priced view of an active cart.
type PricedCart struct {
	CartID string
	UserID string
	Tier   Tier
	Items  []PricedCartItem
	Total  int64
}

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// PaymentState is the payment axis of an order, orthogonal to OrderStatus.
type PaymentState string

const (
	PaymentStateNone      PaymentState = "None"
	PaymentStateUnpaid    PaymentState = "Unpaid"
	PaymentStatePaid      PaymentState = "Paid"
	PaymentStateRejected  PaymentState = "Rejected"
	PaymentStateCancelled PaymentState = "Cancelled"
)

// ShippingMethod selects the fee table applied at placement.
type ShippingMethod string

const (
	ShippingGround    ShippingMethod = "Ground"
	ShippingOvernight ShippingMethod = "Overnight"
)

// Address is a postal address snapshot stored on the order.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// OrderItem is an immutable order line. UnitPrice is the tier price
// snapshotted at placement and is never recomputed from current product
// pricing. Refunded and Replaced are mutually exclusive.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64
	Refunded  bool
	Replaced  bool
}

// Order is a placed order with its fulfillment and payment state. Amount is
// items + shipping - discount in minor currency units.
type Order struct {
	ID               string
	UserID           string
	CartID           string
	Items            []OrderItem
	Status           OrderStatus
	Paid             PaymentState
	Amount           int64
	ShippingFee      int64
	ShippingMethod   ShippingMethod
	Discount         int64
	ShippingAddress  Address
	BillingAddress   Address
	PaymentMethodRef string
	AuthorizationRef string
	// PaymentFailureReason stores the gateway decline reason when Paid is
	// Rejected.
	PaymentFailureReason string
	TrackingID           string
	ApprovedAt           time.Time
	DeliveredAt          time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CanTransition reports whether the fulfillment state machine permits moving
// from the order's current status to next. Delivered and Cancelled are
// terminal.
func (o Order) CanTransition(next OrderStatus) bool {
	switch o.Status {
	case OrderStatusPending:
		return next == OrderStatusProcessing || next == OrderStatusCancelled
	case OrderStatusProcessing:
		return next == OrderStatusDelivered || next == OrderStatusCancelled
	default:
		return false
	}
}

// ItemSubtotal sums quantity times unit price across the order's lines.
func (o Order) ItemSubtotal() int64 {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.UnitPrice * item.Quantity
	}
	return subtotal
}
