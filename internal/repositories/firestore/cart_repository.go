package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/meridian-commerce/api/internal/domain"
	pfirestore "github.com/meridian-commerce/api/internal/platform/firestore"
	"github.com/meridian-commerce/api/internal/repositories"
)

const cartCollection = "carts"

type cartDocument struct {
	UserID                 string             `firestore:"userId"`
	Items                  []cartItemDocument `firestore:"items"`
	IsActive               bool               `firestore:"isActive"`
	LastActivityAt         time.Time          `firestore:"lastActivityAt"`
	ReminderSentAt         time.Time          `firestore:"reminderSentAt,omitempty"`
	AbandonedReminderCount int                `firestore:"abandonedReminderCount"`
	CreatedAt              time.Time          `firestore:"createdAt"`
	UpdatedAt              time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int64  `firestore:"quantity"`
}

// CartRepository persists carts in Firestore. One document per cart; the
// single-active-cart invariant is queried via (userId, isActive).
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// FindActive returns the user's active cart or a not-found error.
func (r *CartRepository) FindActive(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).
			Where("isActive", "==", true).
			Limit(1)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	if len(docs) == 0 {
		return domain.Cart{}, notFoundError("carts.findActive")
	}
	return toDomainCart(docs[0].ID, docs[0].Data), nil
}

// Insert writes a new cart document keyed by its id.
func (r *CartRepository) Insert(ctx context.Context, cart domain.Cart) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	if strings.TrimSpace(cart.ID) == "" {
		return errors.New("cart repository: cart id is required")
	}
	_, err := r.base.Set(ctx, cart.ID, fromDomainCart(cart))
	return err
}

// Update overwrites an existing cart document.
func (r *CartRepository) Update(ctx context.Context, cart domain.Cart) error {
	return r.Insert(ctx, cart)
}

// Deactivate flips IsActive off, preserving the document for history.
func (r *CartRepository) Deactivate(ctx context.Context, cartID string, deactivatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	_, err := r.base.Update(ctx, cartID, []firestore.Update{
		{Path: "isActive", Value: false},
		{Path: "updatedAt", Value: deactivatedAt.UTC()},
	})
	return err
}

// ListAbandoned returns up to limit active, non-empty carts whose last
// activity predates inactiveSince and whose reminder count is below
// maxReminders, oldest first. The reminder-count bound is applied in memory
// since Firestore allows range operators on a single field per query.
func (r *CartRepository) ListAbandoned(ctx context.Context, inactiveSince time.Time, maxReminders int, limit int) ([]domain.Cart, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("cart repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		query := q.Where("isActive", "==", true).
			Where("lastActivityAt", "<", inactiveSince.UTC()).
			OrderBy("lastActivityAt", firestore.Asc)
		if limit > 0 {
			query = query.Limit(limit * 2)
		}
		return query
	})
	if err != nil {
		return nil, err
	}
	carts := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Data.Items) == 0 {
			continue
		}
		if maxReminders > 0 && doc.Data.AbandonedReminderCount >= maxReminders {
			continue
		}
		carts = append(carts, toDomainCart(doc.ID, doc.Data))
		if limit > 0 && len(carts) == limit {
			break
		}
	}
	return carts, nil
}

func fromDomainCart(cart domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return cartDocument{
		UserID:                 strings.TrimSpace(cart.UserID),
		Items:                  items,
		IsActive:               cart.IsActive,
		LastActivityAt:         cart.LastActivityAt.UTC(),
		ReminderSentAt:         cart.ReminderSentAt.UTC(),
		AbandonedReminderCount: cart.AbandonedReminderCount,
		CreatedAt:              cart.CreatedAt.UTC(),
		UpdatedAt:              cart.UpdatedAt.UTC(),
	}
}

func toDomainCart(id string, doc cartDocument) domain.Cart {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return domain.Cart{
		ID:                     id,
		UserID:                 doc.UserID,
		Items:                  items,
		IsActive:               doc.IsActive,
		LastActivityAt:         doc.LastActivityAt,
		ReminderSentAt:         doc.ReminderSentAt,
		AbandonedReminderCount: doc.AbandonedReminderCount,
		CreatedAt:              doc.CreatedAt,
		UpdatedAt:              doc.UpdatedAt,
	}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
