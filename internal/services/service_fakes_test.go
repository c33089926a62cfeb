package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/payments"
	"github.com/meridian-commerce/api/internal/repositories"
)

type fakeRepoError struct {
	notFound bool
	conflict bool
	msg      string
}

func (e fakeRepoError) Error() string       { return e.msg }
func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return !e.notFound && !e.conflict }

var errFakeNotFound = fakeRepoError{notFound: true, msg: "fake: not found"}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// fakeCategoryRepo keeps categories in memory keyed by id.
type fakeCategoryRepo struct {
	categories map[string]domain.Category
	failWith   error
}

func newFakeCategoryRepo(seed ...domain.Category) *fakeCategoryRepo {
	repo := &fakeCategoryRepo{categories: make(map[string]domain.Category)}
	for _, category := range seed {
		repo.categories[category.ID] = category
	}
	return repo
}

func (r *fakeCategoryRepo) Insert(_ context.Context, category domain.Category) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.categories[category.ID] = category
	return nil
}

func (r *fakeCategoryRepo) Update(_ context.Context, category domain.Category) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.categories[category.ID]; !ok {
		return errFakeNotFound
	}
	r.categories[category.ID] = category
	return nil
}

func (r *fakeCategoryRepo) FindByID(_ context.Context, categoryID string) (domain.Category, error) {
	if r.failWith != nil {
		return domain.Category{}, r.failWith
	}
	category, ok := r.categories[categoryID]
	if !ok {
		return domain.Category{}, errFakeNotFound
	}
	return category, nil
}

func (r *fakeCategoryRepo) FindByNameAtLevel(_ context.Context, name string, level int) (domain.Category, error) {
	for _, category := range r.categories {
		if category.IsDeleted || category.Level != level {
			continue
		}
		if strings.EqualFold(category.Name, name) {
			return category, nil
		}
	}
	return domain.Category{}, errFakeNotFound
}

func (r *fakeCategoryRepo) ListChildren(_ context.Context, parentID string) ([]domain.Category, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	var children []domain.Category
	for _, category := range r.categories {
		if category.IsDeleted || category.ParentID != parentID {
			continue
		}
		children = append(children, category)
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].DisplayOrder < children[j].DisplayOrder
	})
	return children, nil
}

func (r *fakeCategoryRepo) ListPublic(_ context.Context) ([]domain.Category, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []domain.Category
	for _, category := range r.categories {
		if category.IsDeleted || category.IsQuarantine() || category.ParentID == domain.QuarantineCategoryID {
			continue
		}
		out = append(out, category)
	}
	return out, nil
}

func (r *fakeCategoryRepo) SetDisplayOrder(_ context.Context, categoryID string, displayOrder int, updatedAt time.Time) error {
	category, ok := r.categories[categoryID]
	if !ok {
		return errFakeNotFound
	}
	category.DisplayOrder = displayOrder
	category.UpdatedAt = updatedAt
	r.categories[categoryID] = category
	return nil
}

// fakeProductRepo keeps products in memory keyed by id.
type fakeProductRepo struct {
	products map[string]domain.Product
	failWith error
}

func newFakeProductRepo(seed ...domain.Product) *fakeProductRepo {
	repo := &fakeProductRepo{products: make(map[string]domain.Product)}
	for _, product := range seed {
		repo.products[product.ID] = product
	}
	return repo
}

func (r *fakeProductRepo) Insert(_ context.Context, product domain.Product) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.products[product.ID] = product
	return nil
}

func (r *fakeProductRepo) Update(_ context.Context, product domain.Product) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.products[product.ID]; !ok {
		return errFakeNotFound
	}
	r.products[product.ID] = product
	return nil
}

func (r *fakeProductRepo) Delete(_ context.Context, productID string) error {
	if _, ok := r.products[productID]; !ok {
		return errFakeNotFound
	}
	delete(r.products, productID)
	return nil
}

func (r *fakeProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	if r.failWith != nil {
		return domain.Product{}, r.failWith
	}
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, errFakeNotFound
	}
	return product, nil
}

func (r *fakeProductRepo) FindByName(_ context.Context, name string) (domain.Product, error) {
	for _, product := range r.products {
		if !product.IsDeleted && strings.EqualFold(product.Name, name) {
			return product, nil
		}
	}
	return domain.Product{}, errFakeNotFound
}

func (r *fakeProductRepo) FindBySKU(_ context.Context, sku string) (domain.Product, error) {
	for _, product := range r.products {
		if !product.IsDeleted && product.SKU == sku {
			return product, nil
		}
	}
	return domain.Product{}, errFakeNotFound
}

func (r *fakeProductRepo) ListByScope(_ context.Context, scopeID string) ([]domain.Product, error) {
	var out []domain.Product
	for _, product := range r.products {
		if product.IsDeleted || !product.Published || product.OrderingScope() != scopeID {
			continue
		}
		out = append(out, product)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (r *fakeProductRepo) ListByCategories(_ context.Context, categoryIDs []string) ([]domain.Product, error) {
	wanted := make(map[string]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		wanted[id] = struct{}{}
	}
	var out []domain.Product
	for _, product := range r.products {
		if product.IsDeleted {
			continue
		}
		_, inCategory := wanted[product.CategoryID]
		_, inSub := wanted[product.SubCategoryID]
		if inCategory || inSub {
			out = append(out, product)
		}
	}
	return out, nil
}

func (r *fakeProductRepo) ListFlagged(_ context.Context, flag string, limit int) ([]domain.Product, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []domain.Product
	for _, product := range r.products {
		if product.IsDeleted || !product.Published {
			continue
		}
		switch flag {
		case "featured":
			if !product.Featured {
				continue
			}
		case "mostPopular":
			if !product.MostPopular {
				continue
			}
		case "mostSold":
			if !product.MostSold {
				continue
			}
		default:
			continue
		}
		out = append(out, product)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeProductRepo) ListVariants(_ context.Context, parentID string) ([]domain.Product, error) {
	var out []domain.Product
	for _, product := range r.products {
		if !product.IsDeleted && product.VariantOfID == parentID {
			out = append(out, product)
		}
	}
	return out, nil
}

func (r *fakeProductRepo) Search(_ context.Context, filter repositories.ProductSearchFilter) (domain.CursorPage[domain.Product], error) {
	if r.failWith != nil {
		return domain.CursorPage[domain.Product]{}, r.failWith
	}
	categorySet := make(map[string]struct{}, len(filter.CategoryIDs))
	for _, id := range filter.CategoryIDs {
		categorySet[id] = struct{}{}
	}
	var out []domain.Product
	for _, product := range r.products {
		if product.IsDeleted {
			continue
		}
		if !filter.IncludeHidden && !product.Published {
			continue
		}
		if len(categorySet) > 0 {
			_, inCategory := categorySet[product.CategoryID]
			_, inSub := categorySet[product.SubCategoryID]
			if !inCategory && !inSub {
				continue
			}
		}
		if filter.BrandID != "" && product.BrandID != filter.BrandID {
			continue
		}
		if !matchesTags(product, filter.Tags) || !matchesKeywords(product, filter.Keywords) {
			continue
		}
		out = append(out, product)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.Product]{Items: out}, nil
}

func matchesTags(product domain.Product, tags []string) bool {
	for _, tag := range tags {
		found := false
		for _, have := range product.Tags {
			if strings.EqualFold(have, tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func matchesKeywords(product domain.Product, keywords []string) bool {
	haystack := strings.ToLower(product.Name + " " + product.Description)
	for _, kw := range keywords {
		if !strings.Contains(haystack, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

func (r *fakeProductRepo) SetDisplayOrder(_ context.Context, productID string, displayOrder int, updatedAt time.Time) error {
	product, ok := r.products[productID]
	if !ok {
		return errFakeNotFound
	}
	product.DisplayOrder = displayOrder
	product.UpdatedAt = updatedAt
	r.products[productID] = product
	return nil
}

func (r *fakeProductRepo) DecrementStock(_ context.Context, lines []repositories.StockDecrement, now time.Time) (map[string]int64, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, line := range lines {
		product, ok := r.products[line.ProductID]
		if !ok {
			return nil, errFakeNotFound
		}
		if product.Stock < line.Quantity {
			return nil, repositories.NewInsufficientStockError(line.ProductID, product.Stock, line.Quantity)
		}
	}
	remaining := make(map[string]int64, len(lines))
	for _, line := range lines {
		product := r.products[line.ProductID]
		product.Stock -= line.Quantity
		product.UpdatedAt = now
		r.products[line.ProductID] = product
		remaining[line.ProductID] = product.Stock
	}
	return remaining, nil
}

func (r *fakeProductRepo) SetStock(_ context.Context, productID string, stock int64, now time.Time) (int64, error) {
	product, ok := r.products[productID]
	if !ok {
		return 0, errFakeNotFound
	}
	previous := product.Stock
	product.Stock = stock
	product.UpdatedAt = now
	r.products[productID] = product
	return previous, nil
}

// fakeBrandRepo validates brand references.
type fakeBrandRepo struct {
	brands map[string]domain.Brand
}

func newFakeBrandRepo(seed ...domain.Brand) *fakeBrandRepo {
	repo := &fakeBrandRepo{brands: make(map[string]domain.Brand)}
	for _, brand := range seed {
		repo.brands[brand.ID] = brand
	}
	return repo
}

func (r *fakeBrandRepo) FindByID(_ context.Context, brandID string) (domain.Brand, error) {
	brand, ok := r.brands[brandID]
	if !ok {
		return domain.Brand{}, errFakeNotFound
	}
	return brand, nil
}

func (r *fakeBrandRepo) List(_ context.Context) ([]domain.Brand, error) {
	out := make([]domain.Brand, 0, len(r.brands))
	for _, brand := range r.brands {
		out = append(out, brand)
	}
	return out, nil
}

// fakeCartRepo keeps carts in memory keyed by id.
type fakeCartRepo struct {
	carts    map[string]domain.Cart
	failWith error
}

func newFakeCartRepo(seed ...domain.Cart) *fakeCartRepo {
	repo := &fakeCartRepo{carts: make(map[string]domain.Cart)}
	for _, cart := range seed {
		repo.carts[cart.ID] = cart
	}
	return repo
}

func (r *fakeCartRepo) FindActive(_ context.Context, userID string) (domain.Cart, error) {
	if r.failWith != nil {
		return domain.Cart{}, r.failWith
	}
	for _, cart := range r.carts {
		if cart.IsActive && cart.UserID == userID {
			return cart, nil
		}
	}
	return domain.Cart{}, errFakeNotFound
}

func (r *fakeCartRepo) Insert(_ context.Context, cart domain.Cart) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.carts[cart.ID] = cart
	return nil
}

func (r *fakeCartRepo) Update(_ context.Context, cart domain.Cart) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.carts[cart.ID]; !ok {
		return errFakeNotFound
	}
	r.carts[cart.ID] = cart
	return nil
}

func (r *fakeCartRepo) Deactivate(_ context.Context, cartID string, deactivatedAt time.Time) error {
	cart, ok := r.carts[cartID]
	if !ok {
		return errFakeNotFound
	}
	cart.IsActive = false
	cart.UpdatedAt = deactivatedAt
	r.carts[cartID] = cart
	return nil
}

func (r *fakeCartRepo) ListAbandoned(_ context.Context, inactiveSince time.Time, maxReminders int, limit int) ([]domain.Cart, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []domain.Cart
	for _, cart := range r.carts {
		if !cart.IsActive || len(cart.Items) == 0 {
			continue
		}
		if !cart.LastActivityAt.Before(inactiveSince) {
			continue
		}
		if cart.AbandonedReminderCount >= maxReminders {
			continue
		}
		out = append(out, cart)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.Before(out[j].LastActivityAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeOrderRepo keeps orders in memory keyed by id.
type fakeOrderRepo struct {
	orders   map[string]domain.Order
	failWith error
}

func newFakeOrderRepo(seed ...domain.Order) *fakeOrderRepo {
	repo := &fakeOrderRepo{orders: make(map[string]domain.Order)}
	for _, order := range seed {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *fakeOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) Update(_ context.Context, order domain.Order) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.orders[order.ID]; !ok {
		return errFakeNotFound
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	if r.failWith != nil {
		return domain.Order{}, r.failWith
	}
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, errFakeNotFound
	}
	return order, nil
}

func (r *fakeOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	var out []domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, order.Status) {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.Order]{Items: out}, nil
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// fakeRequestRepo keeps requests in memory keyed by id.
type fakeRequestRepo struct {
	requests map[string]domain.Request
	failWith error
}

func newFakeRequestRepo(seed ...domain.Request) *fakeRequestRepo {
	repo := &fakeRequestRepo{requests: make(map[string]domain.Request)}
	for _, request := range seed {
		repo.requests[request.ID] = request
	}
	return repo
}

func (r *fakeRequestRepo) Insert(_ context.Context, request domain.Request) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.requests[request.ID] = request
	return nil
}

func (r *fakeRequestRepo) Update(_ context.Context, request domain.Request) error {
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.requests[request.ID]; !ok {
		return errFakeNotFound
	}
	r.requests[request.ID] = request
	return nil
}

func (r *fakeRequestRepo) FindByID(_ context.Context, requestID string) (domain.Request, error) {
	if r.failWith != nil {
		return domain.Request{}, r.failWith
	}
	request, ok := r.requests[requestID]
	if !ok {
		return domain.Request{}, errFakeNotFound
	}
	return request, nil
}

func (r *fakeRequestRepo) FindOpenByOrder(_ context.Context, orderID string) (domain.Request, error) {
	for _, request := range r.requests {
		if request.OrderID != orderID {
			continue
		}
		if request.Status == domain.RequestStatusPending || request.Status == domain.RequestStatusProcessing {
			return request, nil
		}
	}
	return domain.Request{}, errFakeNotFound
}

func (r *fakeRequestRepo) ListByUser(_ context.Context, userID string, _ domain.Pagination) (domain.CursorPage[domain.Request], error) {
	var out []domain.Request
	for _, request := range r.requests {
		if request.UserID == userID {
			out = append(out, request)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.Request]{Items: out}, nil
}

func (r *fakeRequestRepo) List(_ context.Context, _ domain.Pagination) (domain.CursorPage[domain.Request], error) {
	var out []domain.Request
	for _, request := range r.requests {
		out = append(out, request)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.Request]{Items: out}, nil
}

// fakeUserRepo keeps profiles in memory keyed by id.
type fakeUserRepo struct {
	users    map[string]domain.UserProfile
	failWith error
}

func newFakeUserRepo(seed ...domain.UserProfile) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]domain.UserProfile)}
	for _, user := range seed {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) FindByID(_ context.Context, userID string) (domain.UserProfile, error) {
	if r.failWith != nil {
		return domain.UserProfile{}, r.failWith
	}
	user, ok := r.users[userID]
	if !ok {
		return domain.UserProfile{}, errFakeNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r.failWith != nil {
		return domain.UserProfile{}, r.failWith
	}
	if _, ok := r.users[profile.ID]; !ok {
		return domain.UserProfile{}, errFakeNotFound
	}
	r.users[profile.ID] = profile
	return profile, nil
}

// fakeCounterRepo hands out sequence numbers.
type fakeCounterRepo struct {
	values map[string]int64
}

func newFakeCounterRepo() *fakeCounterRepo {
	return &fakeCounterRepo{values: make(map[string]int64)}
}

func (r *fakeCounterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if step <= 0 {
		step = 1
	}
	r.values[counterID] += step
	return r.values[counterID], nil
}

func (r *fakeCounterRepo) Configure(_ context.Context, _ string, _ repositories.CounterConfig) error {
	return nil
}

// gatewayCall records one invocation against the fake payment gateway.
type gatewayCall struct {
	op     string
	amount int64
	ref    string
}

// fakeGateway scripts authorize/capture outcomes and records every call.
type fakeGateway struct {
	authorizeErr error
	captureErr   error
	refundErr    error
	cancelErr    error
	calls        []gatewayCall
}

func (g *fakeGateway) Authorize(_ context.Context, req payments.AuthorizationRequest) (payments.PaymentDetails, error) {
	g.calls = append(g.calls, gatewayCall{op: "authorize", amount: req.Amount})
	if g.authorizeErr != nil {
		return payments.PaymentDetails{}, g.authorizeErr
	}
	return payments.PaymentDetails{AuthorizationRef: "auth-" + req.IdempotencyKey, Status: payments.StatusAuthorized}, nil
}

func (g *fakeGateway) Capture(_ context.Context, req payments.CaptureRequest) (payments.PaymentDetails, error) {
	g.calls = append(g.calls, gatewayCall{op: "capture", amount: req.Amount, ref: req.AuthorizationRef})
	if g.captureErr != nil {
		return payments.PaymentDetails{}, g.captureErr
	}
	return payments.PaymentDetails{AuthorizationRef: req.AuthorizationRef, Status: payments.StatusSucceeded}, nil
}

func (g *fakeGateway) CancelAuthorization(_ context.Context, req payments.CancelRequest) error {
	g.calls = append(g.calls, gatewayCall{op: "cancel", ref: req.AuthorizationRef})
	return g.cancelErr
}

func (g *fakeGateway) Refund(_ context.Context, req payments.RefundRequest) (payments.PaymentDetails, error) {
	g.calls = append(g.calls, gatewayCall{op: "refund", ref: req.AuthorizationRef})
	if g.refundErr != nil {
		return payments.PaymentDetails{}, g.refundErr
	}
	return payments.PaymentDetails{AuthorizationRef: req.AuthorizationRef, Status: payments.StatusRefunded}, nil
}

func (g *fakeGateway) ops() []string {
	out := make([]string, 0, len(g.calls))
	for _, call := range g.calls {
		out = append(out, call.op)
	}
	return out
}

// sentNotification is one message captured by the fake dispatcher.
type sentNotification struct {
	to   string
	kind NotificationKind
}

type fakeNotifier struct {
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) SendTransactional(_ context.Context, to string, kind NotificationKind, _ map[string]any) error {
	n.sent = append(n.sent, sentNotification{to: to, kind: kind})
	return n.err
}

func (n *fakeNotifier) kinds() []NotificationKind {
	out := make([]NotificationKind, 0, len(n.sent))
	for _, msg := range n.sent {
		out = append(out, msg.kind)
	}
	return out
}

type fakeMailingList struct {
	upserts []string
	err     error
}

func (m *fakeMailingList) UpsertContact(_ context.Context, profile UserProfile, _ string) error {
	m.upserts = append(m.upserts, profile.ID)
	return m.err
}

type fakeReminderPublisher struct {
	published []CartReminderMessage
	err       error
}

func (p *fakeReminderPublisher) PublishCartReminder(_ context.Context, message CartReminderMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, message)
	return fmt.Sprintf("msg-%d", len(p.published)), nil
}
