package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/meridian-commerce/api/internal/domain"
	pfirestore "github.com/meridian-commerce/api/internal/platform/firestore"
	"github.com/meridian-commerce/api/internal/platform/pagination"
	"github.com/meridian-commerce/api/internal/repositories"
)

const orderCollection = "orders"

type orderDocument struct {
	UserID               string              `firestore:"userId"`
	CartID               string              `firestore:"cartId"`
	Items                []orderItemDocument `firestore:"items"`
	Status               string              `firestore:"status"`
	Paid                 string              `firestore:"paid"`
	Amount               int64               `firestore:"amount"`
	ShippingFee          int64               `firestore:"shippingFee"`
	ShippingMethod       string              `firestore:"shippingMethod"`
	Discount             int64               `firestore:"discount"`
	ShippingAddress      addressDocument     `firestore:"shippingAddress"`
	BillingAddress       addressDocument     `firestore:"billingAddress"`
	PaymentMethodRef     string              `firestore:"paymentMethodRef,omitempty"`
	AuthorizationRef     string              `firestore:"authorizationRef,omitempty"`
	PaymentFailureReason string              `firestore:"paymentFailureReason,omitempty"`
	TrackingID           string              `firestore:"trackingId,omitempty"`
	ApprovedAt           time.Time           `firestore:"approvedAt,omitempty"`
	DeliveredAt          time.Time           `firestore:"deliveredAt,omitempty"`
	CreatedAt            time.Time           `firestore:"createdAt"`
	UpdatedAt            time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int64  `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Refunded  bool   `firestore:"refunded"`
	Replaced  bool   `firestore:"replaced"`
}

type addressDocument struct {
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

// OrderRepository persists order documents in Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert writes a new order document keyed by its id.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, order.ID, fromDomainOrder(order))
	return err
}

// Update overwrites an existing order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.Insert(ctx, order)
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// List pages order documents newest-first, narrowed by the filter. Status and
// payment-state fans are applied natively when they fit Firestore's "in"
// clause, otherwise in memory.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	statuses := orderStatusStrings(filter.Status)
	paid := paymentStateStrings(filter.Paid)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		query := q
		if filter.UserID != "" {
			query = query.Where("userId", "==", filter.UserID)
		}
		if len(statuses) == 1 {
			query = query.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			query = query.Where("status", "in", statuses)
		}
		if filter.CreatedAfter != nil {
			query = query.Where("createdAt", ">", filter.CreatedAfter.UTC())
		}
		if filter.CreatedBefore != nil {
			query = query.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
		query = query.OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize*2 + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	var lastCreatedAt time.Time
	var lastID string
	for _, doc := range docs {
		lastCreatedAt = doc.Data.CreatedAt
		lastID = doc.ID
		if len(paid) > 0 && !containsString(paid, doc.Data.Paid) {
			continue
		}
		page.Items = append(page.Items, toDomainOrder(doc.ID, doc.Data))
		if len(page.Items) == pageSize {
			break
		}
	}

	if len(page.Items) == pageSize && len(docs) > pageSize {
		token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{lastCreatedAt, lastID}})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func orderStatusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func paymentStateStrings(states []domain.PaymentState) []string {
	out := make([]string, 0, len(states))
	for _, state := range states {
		out = append(out, string(state))
	}
	return out
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Refunded:  item.Refunded,
			Replaced:  item.Replaced,
		})
	}
	return orderDocument{
		UserID:               order.UserID,
		CartID:               order.CartID,
		Items:                items,
		Status:               string(order.Status),
		Paid:                 string(order.Paid),
		Amount:               order.Amount,
		ShippingFee:          order.ShippingFee,
		ShippingMethod:       string(order.ShippingMethod),
		Discount:             order.Discount,
		ShippingAddress:      fromDomainAddress(order.ShippingAddress),
		BillingAddress:       fromDomainAddress(order.BillingAddress),
		PaymentMethodRef:     order.PaymentMethodRef,
		AuthorizationRef:     order.AuthorizationRef,
		PaymentFailureReason: order.PaymentFailureReason,
		TrackingID:           order.TrackingID,
		ApprovedAt:           order.ApprovedAt.UTC(),
		DeliveredAt:          order.DeliveredAt.UTC(),
		CreatedAt:            order.CreatedAt.UTC(),
		UpdatedAt:            order.UpdatedAt.UTC(),
	}
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Refunded:  item.Refunded,
			Replaced:  item.Replaced,
		})
	}
	return domain.Order{
		ID:                   id,
		UserID:               doc.UserID,
		CartID:               doc.CartID,
		Items:                items,
		Status:               domain.OrderStatus(doc.Status),
		Paid:                 domain.PaymentState(doc.Paid),
		Amount:               doc.Amount,
		ShippingFee:          doc.ShippingFee,
		ShippingMethod:       domain.ShippingMethod(doc.ShippingMethod),
		Discount:             doc.Discount,
		ShippingAddress:      toDomainAddress(doc.ShippingAddress),
		BillingAddress:       toDomainAddress(doc.BillingAddress),
		PaymentMethodRef:     doc.PaymentMethodRef,
		AuthorizationRef:     doc.AuthorizationRef,
		PaymentFailureReason: doc.PaymentFailureReason,
		TrackingID:           doc.TrackingID,
		ApprovedAt:           doc.ApprovedAt,
		DeliveredAt:          doc.DeliveredAt,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
}

func fromDomainAddress(address domain.Address) addressDocument {
	return addressDocument{
		Line1:      address.Line1,
		Line2:      address.Line2,
		City:       address.City,
		State:      address.State,
		PostalCode: address.PostalCode,
		Country:    address.Country,
	}
}

func toDomainAddress(doc addressDocument) domain.Address {
	return domain.Address{
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		State:      doc.State,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
