package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
)

var catalogTestTime = time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

type catalogFixture struct {
	products   *fakeProductRepo
	categories *fakeCategoryRepo
	brands     *fakeBrandRepo
	counters   *fakeCounterRepo
	notifier   *fakeNotifier
	svc        CatalogService
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	f := &catalogFixture{
		products: newFakeProductRepo(),
		categories: newFakeCategoryRepo(
			domain.Category{ID: "cat1", Name: "Beverages", Level: 1},
			domain.Category{ID: "cat2", Name: "Snacks", Level: 1},
			domain.Category{ID: "sub1", Name: "Coffee", Level: 2, ParentID: "cat1"},
		),
		brands:   newFakeBrandRepo(domain.Brand{ID: "b1", Name: "Acme"}),
		counters: newFakeCounterRepo(),
		notifier: &fakeNotifier{},
	}
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    f.products,
		Categories:  f.categories,
		Brands:      f.brands,
		Counters:    f.counters,
		Notifier:    f.notifier,
		Clock:       fixedClock(catalogTestTime),
		IDGenerator: seqIDs("prod"),
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	f.svc = svc
	return f
}

func createCommand(name string) CreateProductCommand {
	return CreateProductCommand{
		Name:        name,
		Description: "A fine product.",
		Price:       1000,
		CostPrice:   400,
		Pricing:     TierPriceInput{Wholesale: 700, Retailer: 800, ChainStore: 850, Franchise: 1000},
		CategoryID:  "cat1",
		Stock:       5,
		Published:   true,
	}
}

func TestCreateProductAssignsCodeAndOrder(t *testing.T) {
	f := newCatalogFixture(t)

	first, err := f.svc.CreateProduct(context.Background(), createCommand("Widget"))
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if first.ProductCode != "P000001" {
		t.Errorf("code = %q, want P000001", first.ProductCode)
	}
	if first.DisplayOrder != 1 {
		t.Errorf("display order = %d, want 1", first.DisplayOrder)
	}

	second, err := f.svc.CreateProduct(context.Background(), createCommand("Gadget"))
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if second.ProductCode != "P000002" {
		t.Errorf("code = %q, want P000002", second.ProductCode)
	}
	if second.DisplayOrder != 2 {
		t.Errorf("display order = %d, want appended after sibling", second.DisplayOrder)
	}
}

func TestCreateProductSanitizesDescription(t *testing.T) {
	f := newCatalogFixture(t)
	cmd := createCommand("Widget")
	cmd.Description = `Great <b>coffee</b><script>alert("x")</script>`

	product, err := f.svc.CreateProduct(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if strings.Contains(product.Description, "<script") {
		t.Errorf("description kept script tag: %q", product.Description)
	}
	if !strings.Contains(product.Description, "<b>coffee</b>") {
		t.Errorf("description lost benign markup: %q", product.Description)
	}
}

func TestCreateProductRequiresCompletePricing(t *testing.T) {
	f := newCatalogFixture(t)
	cmd := createCommand("Widget")
	cmd.Pricing.Retailer = 0

	_, err := f.svc.CreateProduct(context.Background(), cmd)
	if !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("err = %v, want ErrProductInvalidInput", err)
	}
}

func TestCreateProductRejectsDuplicates(t *testing.T) {
	f := newCatalogFixture(t)
	cmd := createCommand("Widget")
	cmd.SKU = "SKU-1"
	if _, err := f.svc.CreateProduct(context.Background(), cmd); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	dupName := createCommand("widget")
	if _, err := f.svc.CreateProduct(context.Background(), dupName); !errors.Is(err, ErrProductDuplicateName) {
		t.Errorf("name err = %v, want ErrProductDuplicateName", err)
	}

	dupSKU := createCommand("Other")
	dupSKU.SKU = "SKU-1"
	if _, err := f.svc.CreateProduct(context.Background(), dupSKU); !errors.Is(err, ErrProductDuplicateSKU) {
		t.Errorf("sku err = %v, want ErrProductDuplicateSKU", err)
	}
}

func TestCreateProductRejectsUnknownReferences(t *testing.T) {
	f := newCatalogFixture(t)

	cmd := createCommand("Widget")
	cmd.CategoryID = "ghost"
	if _, err := f.svc.CreateProduct(context.Background(), cmd); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("category err = %v, want ErrProductNotFound", err)
	}

	cmd = createCommand("Widget")
	cmd.BrandID = "ghost"
	if _, err := f.svc.CreateProduct(context.Background(), cmd); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("brand err = %v, want ErrProductNotFound", err)
	}
}

func TestUpdateProductNotifiesRestock(t *testing.T) {
	f := newCatalogFixture(t)
	cmd := createCommand("Widget")
	cmd.Stock = 0
	product, err := f.svc.CreateProduct(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	stock := int64(7)
	if _, err := f.svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: product.ID, Stock: &stock}); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	kinds := f.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != NotificationRestock {
		t.Fatalf("notifications = %v, want one restock", kinds)
	}

	// A further increase from a positive level stays quiet.
	stock = 12
	if _, err := f.svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: product.ID, Stock: &stock}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if len(f.notifier.kinds()) != 1 {
		t.Errorf("notifications = %v, want no second restock", f.notifier.kinds())
	}
}

func TestUpdateProductMoveToNewScopeRenumbersOldOne(t *testing.T) {
	f := newCatalogFixture(t)
	a, err := f.svc.CreateProduct(context.Background(), createCommand("Alpha"))
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := f.svc.CreateProduct(context.Background(), createCommand("Beta"))
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	newCategory := "cat2"
	moved, err := f.svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: a.ID, CategoryID: &newCategory})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if moved.DisplayOrder != 1 {
		t.Errorf("moved order = %d, want 1 in the empty scope", moved.DisplayOrder)
	}
	if got := f.products.products[b.ID].DisplayOrder; got != 1 {
		t.Errorf("survivor order = %d, want renumbered to 1", got)
	}
}

func TestDeleteProductCascadesToVariants(t *testing.T) {
	f := newCatalogFixture(t)
	parent, err := f.svc.CreateProduct(context.Background(), createCommand("Widget"))
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	variant := catalogProduct("var1", "Widget Large", 1200, 900)
	variant.VariantOfID = parent.ID
	f.products.products["var1"] = variant

	if err := f.svc.DeleteProduct(context.Background(), parent.ID); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, ok := f.products.products[parent.ID]; ok {
		t.Error("parent survived delete")
	}
	if _, ok := f.products.products["var1"]; ok {
		t.Error("variant survived delete")
	}
}

func TestSpecialSetsCachesPerTier(t *testing.T) {
	f := newCatalogFixture(t)
	cmd := createCommand("Widget")
	cmd.Featured = true
	if _, err := f.svc.CreateProduct(context.Background(), cmd); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	sets, err := f.svc.SpecialSets(context.Background(), domain.TierWholesale)
	if err != nil {
		t.Fatalf("SpecialSets: %v", err)
	}
	if len(sets.Featured) != 1 || sets.Featured[0].UnitPrice != 700 {
		t.Fatalf("featured = %+v, want one product at the wholesale price", sets.Featured)
	}

	// Served from cache: the repository is no longer consulted.
	f.products.failWith = errors.New("backend down")
	if _, err := f.svc.SpecialSets(context.Background(), domain.TierWholesale); err != nil {
		t.Fatalf("cached SpecialSets: %v", err)
	}
	// Another tier misses the cache and hits the failing repository.
	if _, err := f.svc.SpecialSets(context.Background(), domain.TierRetailer); err == nil {
		t.Fatal("expected uncached tier to reach the repository")
	}
}

func TestSpecialSetsInvalidatedByFlagChange(t *testing.T) {
	f := newCatalogFixture(t)
	cmd := createCommand("Widget")
	cmd.Featured = true
	product, err := f.svc.CreateProduct(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if _, err := f.svc.SpecialSets(context.Background(), domain.TierFranchise); err != nil {
		t.Fatalf("SpecialSets: %v", err)
	}

	featured := false
	if _, err := f.svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: product.ID, Featured: &featured}); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}

	sets, err := f.svc.SpecialSets(context.Background(), domain.TierFranchise)
	if err != nil {
		t.Fatalf("SpecialSets after update: %v", err)
	}
	if len(sets.Featured) != 0 {
		t.Errorf("featured = %+v, want cleared after the flag dropped", sets.Featured)
	}
}

func TestListProductsExpandsCategorySubtree(t *testing.T) {
	f := newCatalogFixture(t)
	if _, err := f.svc.CreateProduct(context.Background(), createCommand("Beans")); err != nil {
		t.Fatalf("create in root: %v", err)
	}
	subCmd := createCommand("Espresso")
	subCmd.SubCategoryID = "sub1"
	if _, err := f.svc.CreateProduct(context.Background(), subCmd); err != nil {
		t.Fatalf("create in subtree: %v", err)
	}
	otherCmd := createCommand("Chips")
	otherCmd.CategoryID = "cat2"
	if _, err := f.svc.CreateProduct(context.Background(), otherCmd); err != nil {
		t.Fatalf("create elsewhere: %v", err)
	}

	page, err := f.svc.ListProducts(context.Background(), ProductListQuery{CategoryID: "cat1", Tier: domain.TierFranchise})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want the root and subtree products", len(page.Items))
	}
	for _, item := range page.Items {
		if item.Product.Name == "Chips" {
			t.Error("product from a sibling category leaked into the subtree filter")
		}
	}
}

func TestImportProductsDerivesPricesFromCost(t *testing.T) {
	f := newCatalogFixture(t)

	report, err := f.svc.ImportProducts(context.Background(), ImportProductsCommand{Rows: []ImportRow{{
		Name:        "Imported Widget",
		Description: "From the spreadsheet.",
		Price:       1500,
		CostPrice:   1000,
		PercentOfCost: map[domain.Tier]float64{
			domain.TierWholesale:  120,
			domain.TierRetailer:   135.5,
			domain.TierChainStore: 140,
			domain.TierFranchise:  150,
		},
		CategoryID: "cat1",
		Stock:      3,
		Published:  true,
	}}})
	if err != nil {
		t.Fatalf("ImportProducts: %v", err)
	}
	if report.Created != 1 || report.Updated != 0 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v, want one clean create", report)
	}

	product, err := f.products.FindByName(context.Background(), "Imported Widget")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if got := product.Pricing.Wholesale.Price; got != 1200 {
		t.Errorf("wholesale = %d, want 1200", got)
	}
	if got := product.Pricing.Retailer.Price; got != 1355 {
		t.Errorf("retailer = %d, want rounded 1355", got)
	}
}

func TestImportProductsUpdatesExistingBySKU(t *testing.T) {
	f := newCatalogFixture(t)
	cmd := createCommand("Widget")
	cmd.SKU = "SKU-9"
	if _, err := f.svc.CreateProduct(context.Background(), cmd); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	report, err := f.svc.ImportProducts(context.Background(), ImportProductsCommand{Rows: []ImportRow{{
		Name:        "Widget",
		Description: "Updated copy.",
		Price:       1100,
		CostPrice:   500,
		Pricing:     TierPriceInput{Wholesale: 750, Retailer: 850, ChainStore: 900, Franchise: 1100},
		CategoryID:  "cat1",
		SKU:         "SKU-9",
		Stock:       20,
		Published:   true,
	}}})
	if err != nil {
		t.Fatalf("ImportProducts: %v", err)
	}
	if report.Created != 0 || report.Updated != 1 {
		t.Fatalf("report = %+v, want one update", report)
	}
	product, err := f.products.FindBySKU(context.Background(), "SKU-9")
	if err != nil {
		t.Fatalf("FindBySKU: %v", err)
	}
	if product.Price != 1100 || product.Stock != 20 {
		t.Errorf("product = price %d stock %d, want 1100/20", product.Price, product.Stock)
	}
}

func TestImportProductsCollectsRowErrors(t *testing.T) {
	f := newCatalogFixture(t)

	good := ImportRow{
		Name:        "Good Row",
		Description: "Fine.",
		Price:       1000,
		CostPrice:   400,
		Pricing:     TierPriceInput{Wholesale: 700, Retailer: 800, ChainStore: 850, Franchise: 1000},
		CategoryID:  "cat1",
		Published:   true,
	}
	bad := ImportRow{
		Name:          "Bad Row",
		Description:   "Broken percent.",
		Price:         1000,
		CostPrice:     0,
		PercentOfCost: map[domain.Tier]float64{domain.TierWholesale: 120},
		CategoryID:    "cat1",
	}

	report, err := f.svc.ImportProducts(context.Background(), ImportProductsCommand{Rows: []ImportRow{bad, good}})
	if err != nil {
		t.Fatalf("ImportProducts: %v", err)
	}
	if report.Created != 1 {
		t.Errorf("created = %d, want the good row imported", report.Created)
	}
	if len(report.Errors) != 1 || report.Errors[0].Row != 1 {
		t.Fatalf("errors = %+v, want one error for row 1", report.Errors)
	}
}
