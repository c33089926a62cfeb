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
	errCartCartsRequired    = errors.New("cart service: cart repository is required")
	errCartProductsRequired = errors.New("cart service: product repository is required")
	errCartClockRequired    = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the user has no active cart, or the cart lacks the
// referenced line.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartUnavailable indicates the backend rejected or could not serve the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

const missingProductMarker = "Product not found"

// CartServiceDeps wires the repositories for cart operations.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	Logger      EventLogger
	IDGenerator func() string
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
	newID    func() string
	logger   EventLogger
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartCartsRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return deps.Clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// Get returns the priced view of the user's active cart resolved to their
// tier. A user without an active cart gets an empty view, not an error. Lines
// whose product has vanished are kept with a marker so the client can prompt
// removal; they contribute nothing to the total.
func (s *cartService) Get(ctx context.Context, userID string, tier Tier) (PricedCart, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return PricedCart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.FindActive(ctx, trimmed)
	if err != nil {
		if isRepoNotFound(err) {
			return PricedCart{UserID: trimmed, Tier: tier}, nil
		}
		return PricedCart{}, s.translateRepoError(err)
	}

	priced := PricedCart{CartID: cart.ID, UserID: cart.UserID, Tier: tier}
	for _, item := range cart.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		switch {
		case err == nil && !product.IsDeleted:
			unit := domain.PriceForTier(product, tier)
			line := unit * item.Quantity
			priced.Items = append(priced.Items, PricedCartItem{
				ProductID: product.ID,
				Name:      product.Name,
				Quantity:  item.Quantity,
				UnitPrice: unit,
				LineTotal: line,
			})
			priced.Total += line
		case err == nil || isRepoNotFound(err):
			priced.Items = append(priced.Items, PricedCartItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Error:     missingProductMarker,
			})
		default:
			return PricedCart{}, s.translateRepoError(err)
		}
	}
	return priced, nil
}

// Add puts a product into the user's active cart, creating the cart when none
// exists. Adding a product already present merges quantities into the single
// existing line.
func (s *cartService) Add(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	switch {
	case userID == "":
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	case productID == "":
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	case cmd.Quantity <= 0:
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: product %s", ErrCartNotFound, productID)
		}
		return Cart{}, s.translateRepoError(err)
	}
	if product.IsDeleted || !product.Published {
		return Cart{}, fmt.Errorf("%w: product %s", ErrCartNotFound, productID)
	}

	now := s.now()
	cart, err := s.carts.FindActive(ctx, userID)
	if err != nil {
		if !isRepoNotFound(err) {
			return Cart{}, s.translateRepoError(err)
		}
		cart = domain.Cart{
			ID:             s.newID(),
			UserID:         userID,
			Items:          []CartItem{{ProductID: productID, Quantity: cmd.Quantity}},
			IsActive:       true,
			LastActivityAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.carts.Insert(ctx, cart); err != nil {
			return Cart{}, s.translateRepoError(err)
		}
		return cart, nil
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity += cmd.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, CartItem{ProductID: productID, Quantity: cmd.Quantity})
	}
	cart.LastActivityAt = now
	cart.UpdatedAt = now
	if err := s.carts.Update(ctx, cart); err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// Replace swaps the cart's entire item set, creating the cart when none
// exists. Duplicate product lines in the input are merged.
func (s *cartService) Replace(ctx context.Context, cmd ReplaceCartItemsCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	items, err := mergeCartItems(cmd.Items)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	cart, err := s.carts.FindActive(ctx, userID)
	if err != nil {
		if !isRepoNotFound(err) {
			return Cart{}, s.translateRepoError(err)
		}
		cart = domain.Cart{
			ID:             s.newID(),
			UserID:         userID,
			Items:          items,
			IsActive:       true,
			LastActivityAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.carts.Insert(ctx, cart); err != nil {
			return Cart{}, s.translateRepoError(err)
		}
		return cart, nil
	}

	cart.Items = items
	cart.LastActivityAt = now
	cart.UpdatedAt = now
	if err := s.carts.Update(ctx, cart); err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// Remove drops one product line from the user's active cart.
func (s *cartService) Remove(ctx context.Context, userID string, productID string) (Cart, error) {
	trimmedUser := strings.TrimSpace(userID)
	trimmedProduct := strings.TrimSpace(productID)
	switch {
	case trimmedUser == "":
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	case trimmedProduct == "":
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.FindActive(ctx, trimmedUser)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ProductID == trimmedProduct {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return Cart{}, fmt.Errorf("%w: product %s is not in the cart", ErrCartNotFound, trimmedProduct)
	}

	now := s.now()
	cart.Items = kept
	cart.LastActivityAt = now
	cart.UpdatedAt = now
	if err := s.carts.Update(ctx, cart); err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// Clear empties the user's active cart without deactivating it.
func (s *cartService) Clear(ctx context.Context, userID string) error {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.FindActive(ctx, trimmed)
	if err != nil {
		return s.translateRepoError(err)
	}

	now := s.now()
	cart.Items = nil
	cart.LastActivityAt = now
	cart.UpdatedAt = now
	if err := s.carts.Update(ctx, cart); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}

func mergeCartItems(items []domain.CartItem) ([]domain.CartItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	index := make(map[string]int, len(items))
	merged := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: item product id is required", ErrCartInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrCartInvalidInput, productID)
		}
		if i, ok := index[productID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, domain.CartItem{ProductID: productID, Quantity: item.Quantity})
	}
	return merged, nil
}
