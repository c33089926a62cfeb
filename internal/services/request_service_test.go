package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
)

var requestTestTime = time.Date(2026, 6, 10, 9, 30, 0, 0, time.UTC)

type requestFixture struct {
	requests *fakeRequestRepo
	orders   *fakeOrderRepo
	svc      RequestService
}

func newRequestFixture(t *testing.T, orders ...domain.Order) *requestFixture {
	t.Helper()
	f := &requestFixture{
		requests: newFakeRequestRepo(),
		orders:   newFakeOrderRepo(orders...),
	}
	svc, err := NewRequestService(RequestServiceDeps{
		Requests:    f.requests,
		Orders:      f.orders,
		Clock:       fixedClock(requestTestTime),
		IDGenerator: seqIDs("req"),
	})
	if err != nil {
		t.Fatalf("NewRequestService: %v", err)
	}
	f.svc = svc
	return f
}

func deliveredOrder() domain.Order {
	return domain.Order{
		ID:     "o1",
		UserID: "u1",
		Status: domain.OrderStatusDelivered,
		Items: []domain.OrderItem{
			{ProductID: "p1", Name: "Widget", Quantity: 2, UnitPrice: 800},
			{ProductID: "p2", Name: "Gadget", Quantity: 1, UnitPrice: 500},
		},
	}
}

func TestRequestRefundOpensRequestForDeliveredLine(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())

	request, err := f.svc.RequestRefund(context.Background(), DispositionCommand{
		UserID: "u1", OrderID: "o1", ProductID: "p1", Reason: "damaged in transit",
	})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if request.Status != domain.RequestStatusPending {
		t.Errorf("status = %s, want Pending", request.Status)
	}
	if len(request.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(request.Items))
	}
	item := request.Items[0]
	if item.RequestType != domain.RequestTypeRefund || item.Status != domain.RequestItemPending {
		t.Errorf("item = %+v", item)
	}
	if item.Quantity != 2 || item.UnitPrice != 800 {
		t.Errorf("item snapshot = qty %d price %d, want 2/800", item.Quantity, item.UnitPrice)
	}
}

func TestRequestRefundBeforeDelivery(t *testing.T) {
	order := deliveredOrder()
	order.Status = domain.OrderStatusProcessing
	f := newRequestFixture(t, order)

	_, err := f.svc.RequestRefund(context.Background(), DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p1"})
	if !errors.Is(err, ErrRequestNotEligible) {
		t.Fatalf("err = %v, want ErrRequestNotEligible", err)
	}
}

func TestRequestRefundHidesForeignOrder(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())

	_, err := f.svc.RequestRefund(context.Background(), DispositionCommand{UserID: "intruder", OrderID: "o1", ProductID: "p1"})
	if !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
}

func TestRequestRefundRejectsDuplicateOpenItem(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())
	cmd := DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p1"}

	if _, err := f.svc.RequestRefund(context.Background(), cmd); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	_, err := f.svc.RequestRefund(context.Background(), cmd)
	if !errors.Is(err, ErrRequestDuplicate) {
		t.Fatalf("err = %v, want ErrRequestDuplicate", err)
	}
}

func TestRequestsForSameOrderShareOneOpenDocument(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())

	first, err := f.svc.RequestRefund(context.Background(), DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("refund p1: %v", err)
	}
	second, err := f.svc.RequestReplacement(context.Background(), DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p2"})
	if err != nil {
		t.Fatalf("replacement p2: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("request ids differ: %s vs %s", first.ID, second.ID)
	}
	if len(second.Items) != 2 {
		t.Errorf("items = %d, want both dispositions on one request", len(second.Items))
	}
}

func TestRequestRefundRejectsAlreadyReplacedLine(t *testing.T) {
	order := deliveredOrder()
	order.Items[0].Replaced = true
	f := newRequestFixture(t, order)

	_, err := f.svc.RequestRefund(context.Background(), DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p1"})
	if !errors.Is(err, ErrRequestNotEligible) {
		t.Fatalf("err = %v, want ErrRequestNotEligible", err)
	}
}

func TestRequestAllEligibleSkipsStampedAndOpenLines(t *testing.T) {
	order := deliveredOrder()
	order.Items[0].Refunded = true
	f := newRequestFixture(t, order)

	request, err := f.svc.RequestAllEligible(context.Background(), BulkDispositionCommand{
		UserID: "u1", OrderID: "o1", Type: domain.RequestTypeRefund,
	})
	if err != nil {
		t.Fatalf("RequestAllEligible: %v", err)
	}
	if len(request.Items) != 1 || request.Items[0].ProductID != "p2" {
		t.Fatalf("items = %+v, want only p2", request.Items)
	}

	// Repeating finds nothing new once every eligible line is open.
	_, err = f.svc.RequestAllEligible(context.Background(), BulkDispositionCommand{
		UserID: "u1", OrderID: "o1", Type: domain.RequestTypeRefund,
	})
	if !errors.Is(err, ErrRequestNotEligible) {
		t.Fatalf("second call err = %v, want ErrRequestNotEligible", err)
	}
}

func TestRequestRefundStampsLineImmediately(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())

	if _, err := f.svc.RequestRefund(context.Background(), DispositionCommand{
		UserID: "u1", OrderID: "o1", ProductID: "p1",
	}); err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	line := f.orders.orders["o1"].Items[0]
	if !line.Refunded || line.Replaced {
		t.Errorf("line flags = refunded %t replaced %t, want refunded only", line.Refunded, line.Replaced)
	}

	// The stamp lands before any admin decision, so the opposing disposition
	// is blocked from the moment the refund opens.
	_, err := f.svc.RequestReplacement(context.Background(), DispositionCommand{
		UserID: "u1", OrderID: "o1", ProductID: "p1",
	})
	if !errors.Is(err, ErrRequestNotEligible) {
		t.Fatalf("replacement after refund: err = %v, want ErrRequestNotEligible", err)
	}
}

func TestRequestAllEligibleStampsEveryOpenedLine(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())

	if _, err := f.svc.RequestAllEligible(context.Background(), BulkDispositionCommand{
		UserID: "u1", OrderID: "o1", Type: domain.RequestTypeReplacement,
	}); err != nil {
		t.Fatalf("RequestAllEligible: %v", err)
	}
	for i, line := range f.orders.orders["o1"].Items {
		if !line.Replaced || line.Refunded {
			t.Errorf("line %d flags = refunded %t replaced %t, want replaced only", i, line.Refunded, line.Replaced)
		}
	}
}

func TestResolveItemApprovalCompletesRequest(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())
	request, err := f.svc.RequestRefund(context.Background(), DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}

	resolved, err := f.svc.ResolveItem(context.Background(), ResolveRequestItemCommand{
		RequestID: request.ID, ProductID: "p1", Decision: ResolveApproved, Notes: "verified photos",
	})
	if err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	if resolved.Status != domain.RequestStatusCompleted {
		t.Errorf("status = %s, want Completed", resolved.Status)
	}
	if resolved.CompletedAt.IsZero() {
		t.Error("completion timestamp missing")
	}
	if resolved.Items[0].AdminNotes != "verified photos" {
		t.Errorf("notes = %q", resolved.Items[0].AdminNotes)
	}
	line := f.orders.orders["o1"].Items[0]
	if !line.Refunded || line.Replaced {
		t.Errorf("line flags = refunded %t replaced %t, want refunded only", line.Refunded, line.Replaced)
	}
}

func TestResolveItemRejectionKeepsLineStamp(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())
	request, err := f.svc.RequestRefund(context.Background(), DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}

	resolved, err := f.svc.ResolveItem(context.Background(), ResolveRequestItemCommand{
		RequestID: request.ID, ProductID: "p1", Decision: ResolveRejected,
	})
	if err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	if resolved.Status != domain.RequestStatusRejected {
		t.Errorf("status = %s, want Rejected", resolved.Status)
	}
	line := f.orders.orders["o1"].Items[0]
	if !line.Refunded {
		t.Error("rejection cleared the refund stamp")
	}
}

func TestResolveItemMixedOutcomes(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())
	request, err := f.svc.RequestAllEligible(context.Background(), BulkDispositionCommand{
		UserID: "u1", OrderID: "o1", Type: domain.RequestTypeRefund,
	})
	if err != nil {
		t.Fatalf("RequestAllEligible: %v", err)
	}

	partial, err := f.svc.ResolveItem(context.Background(), ResolveRequestItemCommand{
		RequestID: request.ID, ProductID: "p1", Decision: ResolveApproved,
	})
	if err != nil {
		t.Fatalf("resolve p1: %v", err)
	}
	if partial.Status != domain.RequestStatusPending {
		t.Errorf("status after first resolution = %s, want still Pending", partial.Status)
	}
	if !partial.CompletedAt.IsZero() {
		t.Error("request closed while an item is still pending")
	}

	final, err := f.svc.ResolveItem(context.Background(), ResolveRequestItemCommand{
		RequestID: request.ID, ProductID: "p2", Decision: ResolveRejected,
	})
	if err != nil {
		t.Fatalf("resolve p2: %v", err)
	}
	if final.Status != domain.RequestStatusPartiallyCompleted {
		t.Errorf("status = %s, want Partially_Completed", final.Status)
	}
	if final.CompletedAt.IsZero() {
		t.Error("completion timestamp missing after last resolution")
	}
}

func TestResolveItemRejectsDoubleResolution(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())
	request, err := f.svc.RequestRefund(context.Background(), DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	cmd := ResolveRequestItemCommand{RequestID: request.ID, ProductID: "p1", Decision: ResolveApproved}
	if _, err := f.svc.ResolveItem(context.Background(), cmd); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	_, err = f.svc.ResolveItem(context.Background(), cmd)
	if !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
}

func TestReopeningCompletedRequestClearsCompletion(t *testing.T) {
	f := newRequestFixture(t, deliveredOrder())
	request, err := f.svc.RequestRefund(context.Background(), DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p2"})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if _, err := f.svc.ResolveItem(context.Background(), ResolveRequestItemCommand{
		RequestID: request.ID, ProductID: "p2", Decision: ResolveRejected,
	}); err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}

	// The closed request is no longer open, so a new disposition starts a
	// fresh document.
	reopened, err := f.svc.RequestRefund(context.Background(), DispositionCommand{UserID: "u1", OrderID: "o1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if reopened.ID == request.ID {
		t.Error("closed request reused for a new disposition")
	}
	if reopened.Status != domain.RequestStatusPending {
		t.Errorf("status = %s, want Pending", reopened.Status)
	}
}
