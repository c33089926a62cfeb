package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
)

var cartTestTime = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func newCartServiceForTest(t *testing.T, carts *fakeCartRepo, products *fakeProductRepo) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Carts:       carts,
		Products:    products,
		Clock:       fixedClock(cartTestTime),
		IDGenerator: seqIDs("cart"),
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func catalogProduct(id, name string, base int64, wholesale int64) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      name,
		Price:     base,
		Pricing:   domain.PricingTable{Wholesale: domain.TierPrice{Price: wholesale}},
		Published: true,
	}
}

func TestCartAddCreatesCartWhenNoneActive(t *testing.T) {
	carts := newFakeCartRepo()
	products := newFakeProductRepo(catalogProduct("p1", "Widget", 1000, 800))
	svc := newCartServiceForTest(t, carts, products)

	cart, err := svc.Add(context.Background(), AddCartItemCommand{UserID: "u1", ProductID: "p1", Quantity: 2})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !cart.IsActive {
		t.Error("new cart not active")
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Fatalf("items = %+v, want one line of 2", cart.Items)
	}
}

func TestCartAddMergesExistingLine(t *testing.T) {
	carts := newFakeCartRepo(domain.Cart{
		ID: "c1", UserID: "u1", IsActive: true,
		Items: []domain.CartItem{{ProductID: "p1", Quantity: 3}},
	})
	products := newFakeProductRepo(catalogProduct("p1", "Widget", 1000, 800))
	svc := newCartServiceForTest(t, carts, products)

	cart, err := svc.Add(context.Background(), AddCartItemCommand{UserID: "u1", ProductID: "p1", Quantity: 2})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("items = %d, want single merged line", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Errorf("quantity = %d, want 5", cart.Items[0].Quantity)
	}
}

func TestCartAddRejectsUnpublishedProduct(t *testing.T) {
	product := catalogProduct("p1", "Widget", 1000, 800)
	product.Published = false
	svc := newCartServiceForTest(t, newFakeCartRepo(), newFakeProductRepo(product))

	_, err := svc.Add(context.Background(), AddCartItemCommand{UserID: "u1", ProductID: "p1", Quantity: 1})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("err = %v, want ErrCartNotFound", err)
	}
}

func TestCartGetPricesAtCallerTier(t *testing.T) {
	carts := newFakeCartRepo(domain.Cart{
		ID: "c1", UserID: "u1", IsActive: true,
		Items: []domain.CartItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	products := newFakeProductRepo(
		catalogProduct("p1", "Widget", 1000, 800),
		// No wholesale entry on p2, so the base price applies at every tier.
		domain.Product{ID: "p2", Name: "Gadget", Price: 500, Published: true},
	)
	svc := newCartServiceForTest(t, carts, products)

	priced, err := svc.Get(context.Background(), "u1", domain.TierWholesale)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if priced.Items[0].UnitPrice != 800 || priced.Items[0].LineTotal != 1600 {
		t.Errorf("line 1 = %d/%d, want 800/1600", priced.Items[0].UnitPrice, priced.Items[0].LineTotal)
	}
	if priced.Items[1].UnitPrice != 500 {
		t.Errorf("line 2 unit = %d, want base 500", priced.Items[1].UnitPrice)
	}
	if priced.Total != 2100 {
		t.Errorf("total = %d, want 2100", priced.Total)
	}
}

func TestCartGetKeepsMissingProductLinesWithMarker(t *testing.T) {
	carts := newFakeCartRepo(domain.Cart{
		ID: "c1", UserID: "u1", IsActive: true,
		Items: []domain.CartItem{
			{ProductID: "gone", Quantity: 4},
			{ProductID: "p1", Quantity: 1},
		},
	})
	products := newFakeProductRepo(catalogProduct("p1", "Widget", 1000, 800))
	svc := newCartServiceForTest(t, carts, products)

	priced, err := svc.Get(context.Background(), "u1", domain.TierFranchise)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(priced.Items) != 2 {
		t.Fatalf("items = %d, want missing line retained", len(priced.Items))
	}
	if priced.Items[0].Error == "" {
		t.Error("missing line carries no marker")
	}
	if priced.Total != 1000 {
		t.Errorf("total = %d, want missing line excluded", priced.Total)
	}
}

func TestCartGetWithoutActiveCartReturnsEmptyView(t *testing.T) {
	svc := newCartServiceForTest(t, newFakeCartRepo(), newFakeProductRepo())

	priced, err := svc.Get(context.Background(), "u1", domain.TierRetailer)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(priced.Items) != 0 || priced.Total != 0 {
		t.Errorf("view = %+v, want empty", priced)
	}
	if priced.Tier != domain.TierRetailer {
		t.Errorf("tier = %q, want retained", priced.Tier)
	}
}

func TestCartReplaceMergesDuplicateInputLines(t *testing.T) {
	svc := newCartServiceForTest(t, newFakeCartRepo(), newFakeProductRepo())

	cart, err := svc.Replace(context.Background(), ReplaceCartItemsCommand{
		UserID: "u1",
		Items: []domain.CartItem{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 2},
			{ProductID: "p1", Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("items = %d, want duplicates merged", len(cart.Items))
	}
	if cart.Items[0].ProductID != "p1" || cart.Items[0].Quantity != 4 {
		t.Errorf("merged line = %+v, want p1 x4", cart.Items[0])
	}
}

func TestCartRemoveUnknownLine(t *testing.T) {
	carts := newFakeCartRepo(domain.Cart{
		ID: "c1", UserID: "u1", IsActive: true,
		Items: []domain.CartItem{{ProductID: "p1", Quantity: 1}},
	})
	svc := newCartServiceForTest(t, carts, newFakeProductRepo())

	_, err := svc.Remove(context.Background(), "u1", "absent")
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("err = %v, want ErrCartNotFound", err)
	}
}

func TestCartClearEmptiesButKeepsCartActive(t *testing.T) {
	carts := newFakeCartRepo(domain.Cart{
		ID: "c1", UserID: "u1", IsActive: true,
		Items: []domain.CartItem{{ProductID: "p1", Quantity: 1}},
	})
	svc := newCartServiceForTest(t, carts, newFakeProductRepo())

	if err := svc.Clear(context.Background(), "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stored := carts.carts["c1"]
	if len(stored.Items) != 0 {
		t.Errorf("items = %d, want 0", len(stored.Items))
	}
	if !stored.IsActive {
		t.Error("cart deactivated by clear")
	}
}
