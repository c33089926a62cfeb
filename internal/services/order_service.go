package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/payments"
	"github.com/meridian-commerce/api/internal/repositories"
)

var (
	errOrderOrdersRequired   = errors.New("order service: order repository is required")
	errOrderCartsRequired    = errors.New("order service: cart repository is required")
	errOrderProductsRequired = errors.New("order service: product repository is required")
	errOrderUsersRequired    = errors.New("order service: user repository is required")
	errOrderGatewayRequired  = errors.New("order service: payment gateway is required")
	errOrderClockRequired    = errors.New("order service: clock is required")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the requested order does not exist.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderEmptyCart indicates placement was attempted with no active cart or
// an empty one.
var ErrOrderEmptyCart = errors.New("order service: cart is empty")

// ErrOrderIllegalTransition indicates the fulfillment state machine forbids
// the requested move.
var ErrOrderIllegalTransition = errors.New("order service: illegal status transition")

// ErrOrderInsufficientStock indicates acceptance failed because a line exceeds
// the available stock. No stock is consumed when this is returned.
var ErrOrderInsufficientStock = errors.New("order service: insufficient stock")

// ErrOrderPaymentDeclined indicates the gateway refused an authorization or
// capture. On capture the fulfillment transition is kept and the order carries
// paid=Rejected alongside this error.
var ErrOrderPaymentDeclined = errors.New("order service: payment declined")

// ErrOrderUnavailable indicates the backend rejected or could not serve the request.
var ErrOrderUnavailable = errors.New("order service: unavailable")

const defaultOrderCurrency = "usd"

// PaymentGateway is the slice of the payment manager the order state machine
// drives: an uncaptured hold at placement, settled or released as the order
// advances.
type PaymentGateway interface {
	Authorize(ctx context.Context, req payments.AuthorizationRequest) (payments.PaymentDetails, error)
	Capture(ctx context.Context, req payments.CaptureRequest) (payments.PaymentDetails, error)
	CancelAuthorization(ctx context.Context, req payments.CancelRequest) error
	Refund(ctx context.Context, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// OrderServiceDeps wires the repositories and collaborators for order
// operations.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Users       repositories.UserRepository
	Gateway     PaymentGateway
	Notifier    NotificationDispatcher
	Currency    string
	Clock       func() time.Time
	Logger      EventLogger
	IDGenerator func() string
}

type orderService struct {
	orders   repositories.OrderRepository
	carts    repositories.CartRepository
	products repositories.ProductRepository
	users    repositories.UserRepository
	gateway  PaymentGateway
	notifier NotificationDispatcher
	currency string
	now      func() time.Time
	newID    func() string
	logger   EventLogger
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderOrdersRequired
	}
	if deps.Carts == nil {
		return nil, errOrderCartsRequired
	}
	if deps.Products == nil {
		return nil, errOrderProductsRequired
	}
	if deps.Users == nil {
		return nil, errOrderUsersRequired
	}
	if deps.Gateway == nil {
		return nil, errOrderGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	currency := strings.TrimSpace(deps.Currency)
	if currency == "" {
		currency = defaultOrderCurrency
	}
	return &orderService{
		orders:   deps.Orders,
		carts:    deps.Carts,
		products: deps.Products,
		users:    deps.Users,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		currency: currency,
		now:      func() time.Time { return deps.Clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// Place converts the user's active cart into a Pending order. Unit prices are
// snapshotted at the caller's tier and never recomputed afterwards. The full
// amount is authorized as an uncaptured hold; capture happens on acceptance.
// The cart is deactivated, never deleted.
func (s *orderService) Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	switch {
	case userID == "":
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	case strings.TrimSpace(cmd.PaymentMethodRef) == "":
		return Order{}, fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	case cmd.ShippingMethod != domain.ShippingGround && cmd.ShippingMethod != domain.ShippingOvernight:
		return Order{}, fmt.Errorf("%w: unknown shipping method %q", ErrOrderInvalidInput, cmd.ShippingMethod)
	case cmd.Discount < 0:
		return Order{}, fmt.Errorf("%w: discount cannot be negative", ErrOrderInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: user %s", ErrOrderNotFound, userID)
		}
		return Order{}, s.translateRepoError(err)
	}
	tier := domain.TierForRole(string(user.Role))

	cart, err := s.carts.FindActive(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrOrderEmptyCart
		}
		return Order{}, s.translateRepoError(err)
	}
	if len(cart.Items) == 0 {
		return Order{}, ErrOrderEmptyCart
	}

	items := make([]OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				return Order{}, fmt.Errorf("%w: product %s is no longer available", ErrOrderInvalidInput, line.ProductID)
			}
			return Order{}, s.translateRepoError(err)
		}
		if product.IsDeleted || !product.Published {
			return Order{}, fmt.Errorf("%w: product %s is no longer available", ErrOrderInvalidInput, line.ProductID)
		}
		items = append(items, OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: domain.PriceForTier(product, tier),
		})
	}

	now := s.now()
	order := domain.Order{
		ID:               s.newID(),
		UserID:           userID,
		CartID:           cart.ID,
		Items:            items,
		Status:           domain.OrderStatusPending,
		Paid:             domain.PaymentStateUnpaid,
		ShippingMethod:   cmd.ShippingMethod,
		Discount:         cmd.Discount,
		ShippingAddress:  cmd.ShippingAddress,
		BillingAddress:   cmd.BillingAddress,
		PaymentMethodRef: strings.TrimSpace(cmd.PaymentMethodRef),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	// The fee bracket keys off the discounted item subtotal, not the raw one.
	discounted := order.ItemSubtotal() - cmd.Discount
	if discounted <= 0 {
		return Order{}, fmt.Errorf("%w: discount exceeds order total", ErrOrderInvalidInput)
	}
	order.ShippingFee = domain.ShippingFeeFor(cmd.ShippingMethod, discounted)
	order.Amount = discounted + order.ShippingFee

	details, err := s.gateway.Authorize(ctx, payments.AuthorizationRequest{
		Amount:           order.Amount,
		Currency:         s.currency,
		CustomerID:       user.CustomerRef,
		PaymentMethodRef: order.PaymentMethodRef,
		Description:      fmt.Sprintf("Order %s", order.ID),
		Metadata:         map[string]string{"orderId": order.ID, "userId": userID},
		IdempotencyKey:   order.ID,
	})
	if err != nil {
		if reason, ok := payments.DeclineReason(err); ok {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderPaymentDeclined, reason)
		}
		return Order{}, fmt.Errorf("%w: payment authorization failed", ErrOrderUnavailable)
	}
	order.AuthorizationRef = details.AuthorizationRef

	if err := s.orders.Insert(ctx, order); err != nil {
		if cancelErr := s.gateway.CancelAuthorization(ctx, payments.CancelRequest{AuthorizationRef: order.AuthorizationRef}); cancelErr != nil {
			s.logger(ctx, "order.authorization_release_failed", map[string]any{"orderId": order.ID, "error": cancelErr.Error()})
		}
		return Order{}, s.translateRepoError(err)
	}

	if err := s.carts.Deactivate(ctx, cart.ID, now); err != nil {
		s.logger(ctx, "order.cart_deactivate_failed", map[string]any{"orderId": order.ID, "cartId": cart.ID, "error": err.Error()})
	}

	s.notify(ctx, user.Email, NotificationOrderPlaced, map[string]any{"orderId": order.ID, "amount": order.Amount})
	s.notify(ctx, "", NotificationAdminNewOrder, map[string]any{"orderId": order.ID, "userId": userID, "amount": order.Amount})
	return order, nil
}

// Accept moves a Pending order to Processing: quantities may be adjusted
// down, stock is decremented under the oversell guard, and the hold is
// captured for the final amount.
func (s *orderService) Accept(ctx context.Context, cmd AcceptOrderCommand) (Order, error) {
	return s.Transition(ctx, TransitionOrderCommand{
		OrderID:       cmd.OrderID,
		NewStatus:     domain.OrderStatusProcessing,
		AdjustedItems: cmd.AdjustedItems,
	})
}

// Transition drives the fulfillment state machine. Moving into Processing
// consumes stock and captures payment; moving into Delivered captures any
// outstanding payment; cancelling restores consumed stock and releases or
// refunds the payment.
func (s *orderService) Transition(ctx context.Context, cmd TransitionOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if !order.CanTransition(cmd.NewStatus) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderIllegalTransition, order.Status, cmd.NewStatus)
	}

	if err := applyOrderAdjustments(&order, cmd.AdjustedItems, cmd.AdjustedShipping); err != nil {
		return Order{}, err
	}

	now := s.now()
	previous := order.Status
	var captureErr error
	switch cmd.NewStatus {
	case domain.OrderStatusProcessing:
		decrements := make([]repositories.StockDecrement, 0, len(order.Items))
		for _, item := range order.Items {
			decrements = append(decrements, repositories.StockDecrement{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		if _, err := s.products.DecrementStock(ctx, decrements, now); err != nil {
			var invErr *repositories.InventoryError
			if errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorInsufficientStock {
				return Order{}, fmt.Errorf("%w: product %s has %d, requested %d",
					ErrOrderInsufficientStock, invErr.ProductID, invErr.Available, invErr.Requested)
			}
			return Order{}, s.translateRepoError(err)
		}
		order.Status = domain.OrderStatusProcessing
		order.ApprovedAt = now
		captureErr = s.capturePayment(ctx, &order)

	case domain.OrderStatusDelivered:
		order.Status = domain.OrderStatusDelivered
		order.DeliveredAt = now
		if order.Paid != domain.PaymentStatePaid {
			captureErr = s.capturePayment(ctx, &order)
		}

	case domain.OrderStatusCancelled:
		if previous == domain.OrderStatusProcessing {
			s.restoreStock(ctx, order, now)
		}
		s.releasePayment(ctx, &order)
		order.Status = domain.OrderStatusCancelled

	default:
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.NewStatus)
	}

	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	email := s.userEmail(ctx, order.UserID)
	switch order.Status {
	case domain.OrderStatusProcessing:
		s.notify(ctx, email, NotificationOrderConfirmed, map[string]any{"orderId": order.ID, "amount": order.Amount})
	case domain.OrderStatusDelivered:
		s.notify(ctx, email, NotificationOrderDelivered, map[string]any{"orderId": order.ID})
	case domain.OrderStatusCancelled:
		s.notify(ctx, email, NotificationOrderCancelled, map[string]any{"orderId": order.ID})
	}
	if captureErr != nil {
		return order, captureErr
	}
	return order, nil
}

// UpdateTracking attaches a carrier tracking id. It is metadata only and
// never changes fulfillment or payment state.
func (s *orderService) UpdateTracking(ctx context.Context, orderID string, trackingID string) (Order, error) {
	trimmedOrder := strings.TrimSpace(orderID)
	trimmedTracking := strings.TrimSpace(trackingID)
	switch {
	case trimmedOrder == "":
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	case trimmedTracking == "":
		return Order{}, fmt.Errorf("%w: tracking id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, trimmedOrder)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	order.TrackingID = trimmedTracking
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// Get returns one order.
func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, trimmed)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// List returns orders matching the filter.
func (s *orderService) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// capturePayment settles the order's hold for its current amount. A gateway
// decline marks the payment Rejected with the gateway's reason and reports the
// failure without blocking the fulfillment transition.
func (s *orderService) capturePayment(ctx context.Context, order *domain.Order) error {
	if order.AuthorizationRef == "" {
		order.Paid = domain.PaymentStateRejected
		order.PaymentFailureReason = "no authorization on file"
		return fmt.Errorf("%w: no authorization on file", ErrOrderPaymentDeclined)
	}
	_, err := s.gateway.Capture(ctx, payments.CaptureRequest{
		AuthorizationRef: order.AuthorizationRef,
		Amount:           order.Amount,
		IdempotencyKey:   fmt.Sprintf("%s-capture", order.ID),
		Metadata:         map[string]string{"orderId": order.ID},
	})
	if err != nil {
		reason, ok := payments.DeclineReason(err)
		if !ok {
			reason = "payment capture failed"
		}
		order.Paid = domain.PaymentStateRejected
		order.PaymentFailureReason = reason
		s.logger(ctx, "order.capture_failed", map[string]any{"orderId": order.ID, "reason": reason})
		s.notify(ctx, s.userEmail(ctx, order.UserID), NotificationPaymentFailed, map[string]any{"orderId": order.ID, "reason": reason})
		return fmt.Errorf("%w: %s", ErrOrderPaymentDeclined, reason)
	}
	order.Paid = domain.PaymentStatePaid
	order.PaymentFailureReason = ""
	return nil
}

// releasePayment unwinds whatever payment state the order reached: refund a
// captured payment, release an outstanding hold, nothing otherwise.
func (s *orderService) releasePayment(ctx context.Context, order *domain.Order) {
	switch order.Paid {
	case domain.PaymentStatePaid:
		if _, err := s.gateway.Refund(ctx, payments.RefundRequest{
			AuthorizationRef: order.AuthorizationRef,
			Reason:           "requested_by_customer",
			IdempotencyKey:   fmt.Sprintf("%s-cancel-refund", order.ID),
		}); err != nil {
			s.logger(ctx, "order.cancel_refund_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
			return
		}
	case domain.PaymentStateUnpaid, domain.PaymentStateRejected:
		if order.AuthorizationRef == "" {
			break
		}
		if err := s.gateway.CancelAuthorization(ctx, payments.CancelRequest{
			AuthorizationRef: order.AuthorizationRef,
			Reason:           "requested_by_customer",
		}); err != nil {
			s.logger(ctx, "order.authorization_release_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		}
	}
	order.Paid = domain.PaymentStateCancelled
}

// restoreStock returns consumed quantities to the catalog. Failures are
// logged per line and never block the cancellation.
func (s *orderService) restoreStock(ctx context.Context, order domain.Order, now time.Time) {
	for _, item := range order.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			s.logger(ctx, "order.stock_restore_failed", map[string]any{"orderId": order.ID, "productId": item.ProductID, "error": err.Error()})
			continue
		}
		if _, err := s.products.SetStock(ctx, product.ID, product.Stock+item.Quantity, now); err != nil {
			s.logger(ctx, "order.stock_restore_failed", map[string]any{"orderId": order.ID, "productId": item.ProductID, "error": err.Error()})
		}
	}
}

func (s *orderService) userEmail(ctx context.Context, userID string) string {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Email
}

func (s *orderService) notify(ctx context.Context, to string, kind NotificationKind, data map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendTransactional(ctx, to, kind, data); err != nil {
		s.logger(ctx, "order.notify_failed", map[string]any{"kind": string(kind), "error": err.Error()})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderUnavailable
		}
	}
	return ErrOrderUnavailable
}

// applyOrderAdjustments rewrites line quantities and the shipping fee, then
// recomputes the total. Quantities may only be adjusted down and never to
// zero; unit prices are untouched.
func applyOrderAdjustments(order *domain.Order, adjusted []AdjustedItem, shipping *int64) error {
	for _, adj := range adjusted {
		found := false
		for i := range order.Items {
			if order.Items[i].ProductID != adj.ProductID {
				continue
			}
			found = true
			if adj.Quantity <= 0 {
				return fmt.Errorf("%w: adjusted quantity for %s must be positive", ErrOrderInvalidInput, adj.ProductID)
			}
			if adj.Quantity > order.Items[i].Quantity {
				return fmt.Errorf("%w: adjusted quantity for %s exceeds ordered quantity", ErrOrderInvalidInput, adj.ProductID)
			}
			order.Items[i].Quantity = adj.Quantity
			break
		}
		if !found {
			return fmt.Errorf("%w: product %s is not on the order", ErrOrderInvalidInput, adj.ProductID)
		}
	}
	if shipping != nil {
		if *shipping < 0 {
			return fmt.Errorf("%w: shipping fee cannot be negative", ErrOrderInvalidInput)
		}
		order.ShippingFee = *shipping
	}
	if len(adjusted) > 0 || shipping != nil {
		order.Amount = order.ItemSubtotal() + order.ShippingFee - order.Discount
		if order.Amount <= 0 {
			return fmt.Errorf("%w: adjustments produce a non-positive total", ErrOrderInvalidInput)
		}
	}
	return nil
}
