package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/repositories"
)

var (
	errRequestRequestsRequired = errors.New("request service: request repository is required")
	errRequestOrdersRequired   = errors.New("request service: order repository is required")
	errRequestClockRequired    = errors.New("request service: clock is required")
)

// ErrRequestInvalidInput indicates the caller supplied invalid input.
var ErrRequestInvalidInput = errors.New("request service: invalid input")

// ErrRequestNotFound indicates the request, order, or line does not exist.
var ErrRequestNotFound = errors.New("request service: not found")

// ErrRequestDuplicate indicates an open disposition already exists for the
// same order line and type.
var ErrRequestDuplicate = errors.New("request service: duplicate open request")

// ErrRequestNotEligible indicates the order or line cannot accept the
// disposition, e.g. the order is not delivered or the line already carries
// the opposing disposition.
var ErrRequestNotEligible = errors.New("request service: not eligible")

// ErrRequestUnavailable indicates the backend rejected or could not serve the request.
var ErrRequestUnavailable = errors.New("request service: unavailable")

// RequestServiceDeps wires the repositories for disposition operations.
type RequestServiceDeps struct {
	Requests    repositories.RequestRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	Logger      EventLogger
	IDGenerator func() string
}

type requestService struct {
	requests repositories.RequestRepository
	orders   repositories.OrderRepository
	now      func() time.Time
	newID    func() string
	logger   EventLogger
}

// NewRequestService constructs a RequestService enforcing dependency validation.
func NewRequestService(deps RequestServiceDeps) (RequestService, error) {
	if deps.Requests == nil {
		return nil, errRequestRequestsRequired
	}
	if deps.Orders == nil {
		return nil, errRequestOrdersRequired
	}
	if deps.Clock == nil {
		return nil, errRequestClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &requestService{
		requests: deps.Requests,
		orders:   deps.Orders,
		now:      func() time.Time { return deps.Clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// RequestRefund opens a refund disposition for one delivered order line.
func (s *requestService) RequestRefund(ctx context.Context, cmd DispositionCommand) (Request, error) {
	return s.open(ctx, cmd, domain.RequestTypeRefund)
}

// RequestReplacement opens a replacement disposition for one delivered order line.
func (s *requestService) RequestReplacement(ctx context.Context, cmd DispositionCommand) (Request, error) {
	return s.open(ctx, cmd, domain.RequestTypeReplacement)
}

func (s *requestService) open(ctx context.Context, cmd DispositionCommand, reqType RequestType) (Request, error) {
	userID := strings.TrimSpace(cmd.UserID)
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	switch {
	case userID == "":
		return Request{}, fmt.Errorf("%w: user id is required", ErrRequestInvalidInput)
	case orderID == "":
		return Request{}, fmt.Errorf("%w: order id is required", ErrRequestInvalidInput)
	case productID == "":
		return Request{}, fmt.Errorf("%w: product id is required", ErrRequestInvalidInput)
	}

	order, err := s.eligibleOrder(ctx, orderID, userID)
	if err != nil {
		return Request{}, err
	}
	line, ok := findOrderLine(order, productID)
	if !ok {
		return Request{}, fmt.Errorf("%w: product %s is not on order %s", ErrRequestNotFound, productID, orderID)
	}

	// A re-submitted open disposition reports Duplicate, not NotEligible, so
	// the duplicate check runs before the flag check.
	request, found, err := s.openRequest(ctx, orderID)
	if err != nil {
		return Request{}, err
	}
	if found && hasOpenItem(request, productID, reqType) {
		return Request{}, fmt.Errorf("%w: %s for product %s on order %s", ErrRequestDuplicate, reqType, productID, orderID)
	}
	if err := checkLineEligible(line); err != nil {
		return Request{}, err
	}

	now := s.now()
	item := domain.RequestItem{
		ProductID:   line.ProductID,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
		RequestType: reqType,
		Status:      domain.RequestItemPending,
		Reason:      strings.TrimSpace(cmd.Reason),
	}

	if !found {
		request = domain.Request{
			ID:        s.newID(),
			OrderID:   orderID,
			UserID:    userID,
			Items:     []RequestItem{item},
			Status:    domain.FoldRequestStatus([]RequestItem{item}),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.requests.Insert(ctx, request); err != nil {
			return Request{}, s.translateRepoError(err)
		}
	} else {
		request.Items = append(request.Items, item)
		request.Status = domain.FoldRequestStatus(request.Items)
		request.CompletedAt = time.Time{}
		request.UpdatedAt = now
		if err := s.requests.Update(ctx, request); err != nil {
			return Request{}, s.translateRepoError(err)
		}
	}

	// The line is flagged as soon as the disposition opens, not on approval.
	stampLine(&order, productID, reqType)
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return Request{}, s.translateRepoError(err)
	}
	return request, nil
}

// RequestAllEligible opens one disposition per order line that does not
// already carry a disposition flag or an open item of the same type.
func (s *requestService) RequestAllEligible(ctx context.Context, cmd BulkDispositionCommand) (Request, error) {
	userID := strings.TrimSpace(cmd.UserID)
	orderID := strings.TrimSpace(cmd.OrderID)
	switch {
	case userID == "":
		return Request{}, fmt.Errorf("%w: user id is required", ErrRequestInvalidInput)
	case orderID == "":
		return Request{}, fmt.Errorf("%w: order id is required", ErrRequestInvalidInput)
	case cmd.Type != domain.RequestTypeRefund && cmd.Type != domain.RequestTypeReplacement:
		return Request{}, fmt.Errorf("%w: unknown request type %q", ErrRequestInvalidInput, cmd.Type)
	}

	order, err := s.eligibleOrder(ctx, orderID, userID)
	if err != nil {
		return Request{}, err
	}

	request, found, err := s.openRequest(ctx, orderID)
	if err != nil {
		return Request{}, err
	}

	now := s.now()
	reason := strings.TrimSpace(cmd.Reason)
	added := 0
	for i := range order.Items {
		line := order.Items[i]
		if checkLineEligible(line) != nil {
			continue
		}
		if found && hasOpenItem(request, line.ProductID, cmd.Type) {
			continue
		}
		request.Items = append(request.Items, domain.RequestItem{
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			RequestType: cmd.Type,
			Status:      domain.RequestItemPending,
			Reason:      reason,
		})
		stampLine(&order, line.ProductID, cmd.Type)
		added++
	}
	if added == 0 {
		return Request{}, fmt.Errorf("%w: no eligible lines on order %s", ErrRequestNotEligible, orderID)
	}

	request.Status = domain.FoldRequestStatus(request.Items)
	request.CompletedAt = time.Time{}
	request.UpdatedAt = now
	if !found {
		request.ID = s.newID()
		request.OrderID = orderID
		request.UserID = userID
		request.CreatedAt = now
		if err := s.requests.Insert(ctx, request); err != nil {
			return Request{}, s.translateRepoError(err)
		}
	} else if err := s.requests.Update(ctx, request); err != nil {
		return Request{}, s.translateRepoError(err)
	}

	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return Request{}, s.translateRepoError(err)
	}
	return request, nil
}

// ResolveItem decides one pending disposition line. The order line keeps the
// flag it received when the disposition opened, even on rejection. When the
// last pending item resolves, the request closes with a completion timestamp.
func (s *requestService) ResolveItem(ctx context.Context, cmd ResolveRequestItemCommand) (Request, error) {
	requestID := strings.TrimSpace(cmd.RequestID)
	productID := strings.TrimSpace(cmd.ProductID)
	switch {
	case requestID == "":
		return Request{}, fmt.Errorf("%w: request id is required", ErrRequestInvalidInput)
	case productID == "":
		return Request{}, fmt.Errorf("%w: product id is required", ErrRequestInvalidInput)
	case cmd.Decision != ResolveApproved && cmd.Decision != ResolveRejected:
		return Request{}, fmt.Errorf("%w: unknown decision %q", ErrRequestInvalidInput, cmd.Decision)
	}

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return Request{}, s.translateRepoError(err)
	}

	idx := -1
	for i, item := range request.Items {
		if item.ProductID == productID && item.Status == domain.RequestItemPending {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Request{}, fmt.Errorf("%w: no pending item for product %s", ErrRequestNotFound, productID)
	}

	now := s.now()
	item := &request.Items[idx]
	if cmd.Decision == ResolveApproved {
		item.Status = domain.RequestItemApproved
	} else {
		item.Status = domain.RequestItemRejected
	}
	item.AdminNotes = strings.TrimSpace(cmd.Notes)
	item.ProcessedAt = now

	request.Status = domain.FoldRequestStatus(request.Items)
	if request.Status != domain.RequestStatusPending && request.Status != domain.RequestStatusProcessing {
		request.CompletedAt = now
	}
	request.UpdatedAt = now
	if err := s.requests.Update(ctx, request); err != nil {
		return Request{}, s.translateRepoError(err)
	}
	return request, nil
}

// Get returns one request.
func (s *requestService) Get(ctx context.Context, requestID string) (Request, error) {
	trimmed := strings.TrimSpace(requestID)
	if trimmed == "" {
		return Request{}, fmt.Errorf("%w: request id is required", ErrRequestInvalidInput)
	}
	request, err := s.requests.FindByID(ctx, trimmed)
	if err != nil {
		return Request{}, s.translateRepoError(err)
	}
	return request, nil
}

// ListByUser returns the user's requests.
func (s *requestService) ListByUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Request], error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return domain.CursorPage[Request]{}, fmt.Errorf("%w: user id is required", ErrRequestInvalidInput)
	}
	page, err := s.requests.ListByUser(ctx, trimmed, pager)
	if err != nil {
		return domain.CursorPage[Request]{}, s.translateRepoError(err)
	}
	return page, nil
}

// List returns all requests for admin review.
func (s *requestService) List(ctx context.Context, pager Pagination) (domain.CursorPage[Request], error) {
	page, err := s.requests.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Request]{}, s.translateRepoError(err)
	}
	return page, nil
}

// eligibleOrder loads the order and checks ownership and the delivered gate.
func (s *requestService) eligibleOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	if order.UserID != userID {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrRequestNotFound, orderID)
	}
	if order.Status != domain.OrderStatusDelivered {
		return domain.Order{}, fmt.Errorf("%w: order %s is not delivered", ErrRequestNotEligible, orderID)
	}
	return order, nil
}

func (s *requestService) openRequest(ctx context.Context, orderID string) (domain.Request, bool, error) {
	request, err := s.requests.FindOpenByOrder(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Request{}, false, nil
		}
		return domain.Request{}, false, s.translateRepoError(err)
	}
	return request, true, nil
}

// stampLine records the disposition on the order line. A line carries at most
// one flag: a refund stamp clears a replacement stamp and vice versa.
func stampLine(order *domain.Order, productID string, reqType RequestType) {
	for i := range order.Items {
		if order.Items[i].ProductID != productID {
			continue
		}
		if reqType == domain.RequestTypeRefund {
			order.Items[i].Refunded = true
			order.Items[i].Replaced = false
		} else {
			order.Items[i].Replaced = true
			order.Items[i].Refunded = false
		}
		return
	}
}

func (s *requestService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrRequestNotFound
		case repoErr.IsConflict():
			return ErrRequestUnavailable
		}
	}
	return ErrRequestUnavailable
}

func findOrderLine(order domain.Order, productID string) (domain.OrderItem, bool) {
	for _, item := range order.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return domain.OrderItem{}, false
}

// checkLineEligible enforces refund/replacement exclusivity on the order
// line. A line already stamped either way accepts no further dispositions.
func checkLineEligible(line domain.OrderItem) error {
	switch {
	case line.Refunded:
		return fmt.Errorf("%w: product %s is already refunded", ErrRequestNotEligible, line.ProductID)
	case line.Replaced:
		return fmt.Errorf("%w: product %s is already replaced", ErrRequestNotEligible, line.ProductID)
	}
	return nil
}

// hasOpenItem reports whether the request already tracks an unresolved item
// for the product and type.
func hasOpenItem(request domain.Request, productID string, reqType RequestType) bool {
	for _, item := range request.Items {
		if item.ProductID == productID && item.RequestType == reqType && !item.Status.Resolved() {
			return true
		}
	}
	return false
}
