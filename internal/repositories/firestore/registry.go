package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/meridian-commerce/api/internal/platform/firestore"
	"github.com/meridian-commerce/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract. All repositories share one lazily dialled
// client through the provider.
type Registry struct {
	provider *pfirestore.Provider

	categories *CategoryRepository
	products   *ProductRepository
	brands     *BrandRepository
	carts      *CartRepository
	orders     *OrderRepository
	requests   *RequestRepository
	users      *UserRepository
	counters   *CounterRepository
	health     repositories.HealthRepository
}

// NewRegistry constructs the full repository set over one Firestore provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}

	categories, err := NewCategoryRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: categories: %w", err)
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: products: %w", err)
	}
	brands, err := NewBrandRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: brands: %w", err)
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: carts: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: orders: %w", err)
	}
	requests, err := NewRequestRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: requests: %w", err)
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: users: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: counters: %w", err)
	}
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "firestore", Check: firestorePing(provider)},
	})
	if err != nil {
		return nil, fmt.Errorf("firestore registry: health: %w", err)
	}

	return &Registry{
		provider:   provider,
		categories: categories,
		products:   products,
		brands:     brands,
		carts:      carts,
		orders:     orders,
		requests:   requests,
		users:      users,
		counters:   counters,
		health:     health,
	}, nil
}

// firestorePing verifies the client can be obtained and the backend answers a
// trivial read.
func firestorePing(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collections(ctx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }
func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Brands() repositories.BrandRepository        { return r.brands }
func (r *Registry) Carts() repositories.CartRepository          { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Requests() repositories.RequestRepository    { return r.requests }
func (r *Registry) Users() repositories.UserRepository          { return r.users }
func (r *Registry) Counters() repositories.CounterRepository    { return r.counters }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }

// RunInTx groups repository operations in one Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("firestore registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}
