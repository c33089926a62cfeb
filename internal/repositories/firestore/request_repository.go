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

const requestCollection = "requests"

type requestDocument struct {
	OrderID     string                `firestore:"orderId"`
	UserID      string                `firestore:"userId"`
	Items       []requestItemDocument `firestore:"items"`
	Status      string                `firestore:"status"`
	CompletedAt time.Time             `firestore:"completedAt,omitempty"`
	CreatedAt   time.Time             `firestore:"createdAt"`
	UpdatedAt   time.Time             `firestore:"updatedAt"`
}

type requestItemDocument struct {
	ProductID   string    `firestore:"productId"`
	Quantity    int64     `firestore:"quantity"`
	UnitPrice   int64     `firestore:"unitPrice"`
	RequestType string    `firestore:"requestType"`
	Status      string    `firestore:"status"`
	Reason      string    `firestore:"reason,omitempty"`
	AdminNotes  string    `firestore:"adminNotes,omitempty"`
	ProcessedAt time.Time `firestore:"processedAt,omitempty"`
}

// RequestRepository persists refund/replacement request documents in Firestore.
type RequestRepository struct {
	base *pfirestore.BaseRepository[requestDocument]
}

// NewRequestRepository constructs a Firestore-backed request repository.
func NewRequestRepository(provider *pfirestore.Provider) (*RequestRepository, error) {
	if provider == nil {
		return nil, errors.New("request repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[requestDocument](provider, requestCollection, nil, nil)
	return &RequestRepository{base: base}, nil
}

// Insert writes a new request document keyed by its id.
func (r *RequestRepository) Insert(ctx context.Context, request domain.Request) error {
	if r == nil || r.base == nil {
		return errors.New("request repository not initialised")
	}
	if strings.TrimSpace(request.ID) == "" {
		return errors.New("request repository: request id is required")
	}
	_, err := r.base.Set(ctx, request.ID, fromDomainRequest(request))
	return err
}

// Update overwrites an existing request document.
func (r *RequestRepository) Update(ctx context.Context, request domain.Request) error {
	return r.Insert(ctx, request)
}

// FindByID loads one request.
func (r *RequestRepository) FindByID(ctx context.Context, requestID string) (domain.Request, error) {
	if r == nil || r.base == nil {
		return domain.Request{}, errors.New("request repository not initialised")
	}
	doc, err := r.base.Get(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	return toDomainRequest(doc.ID, doc.Data), nil
}

// FindOpenByOrder returns the not-yet-completed request document for an order.
// Open means the aggregate status is Pending or Processing.
func (r *RequestRepository) FindOpenByOrder(ctx context.Context, orderID string) (domain.Request, error) {
	if r == nil || r.base == nil {
		return domain.Request{}, errors.New("request repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", strings.TrimSpace(orderID)).
			Where("status", "in", []string{
				string(domain.RequestStatusPending),
				string(domain.RequestStatusProcessing),
			}).
			Limit(1)
	})
	if err != nil {
		return domain.Request{}, err
	}
	if len(docs) == 0 {
		return domain.Request{}, notFoundError("requests.findOpenByOrder")
	}
	return toDomainRequest(docs[0].ID, docs[0].Data), nil
}

// ListByUser pages one user's requests newest-first.
func (r *RequestRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Request], error) {
	return r.page(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID))
	})
}

// List pages all requests newest-first for the admin view.
func (r *RequestRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Request], error) {
	return r.page(ctx, pager, func(q firestore.Query) firestore.Query { return q })
}

func (r *RequestRepository) page(ctx context.Context, pager domain.Pagination, narrow pfirestore.QueryBuilder) (domain.CursorPage[domain.Request], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Request]{}, errors.New("request repository not initialised")
	}
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Request]{}, err
	}
	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		query := narrow(q).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Request]{}, err
	}

	page := domain.CursorPage[domain.Request]{}
	for i, doc := range docs {
		if i == pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{docs[i-1].Data.CreatedAt, docs[i-1].ID},
			})
			if err != nil {
				return domain.CursorPage[domain.Request]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, toDomainRequest(doc.ID, doc.Data))
	}
	return page, nil
}

func fromDomainRequest(request domain.Request) requestDocument {
	items := make([]requestItemDocument, 0, len(request.Items))
	for _, item := range request.Items {
		items = append(items, requestItemDocument{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			RequestType: string(item.RequestType),
			Status:      string(item.Status),
			Reason:      item.Reason,
			AdminNotes:  item.AdminNotes,
			ProcessedAt: item.ProcessedAt.UTC(),
		})
	}
	return requestDocument{
		OrderID:     request.OrderID,
		UserID:      request.UserID,
		Items:       items,
		Status:      string(request.Status),
		CompletedAt: request.CompletedAt.UTC(),
		CreatedAt:   request.CreatedAt.UTC(),
		UpdatedAt:   request.UpdatedAt.UTC(),
	}
}

func toDomainRequest(id string, doc requestDocument) domain.Request {
	items := make([]domain.RequestItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.RequestItem{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			RequestType: domain.RequestType(item.RequestType),
			Status:      domain.RequestItemStatus(item.Status),
			Reason:      item.Reason,
			AdminNotes:  item.AdminNotes,
			ProcessedAt: item.ProcessedAt,
		})
	}
	return domain.Request{
		ID:          id,
		OrderID:     doc.OrderID,
		UserID:      doc.UserID,
		Items:       items,
		Status:      domain.RequestStatus(doc.Status),
		CompletedAt: doc.CompletedAt,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

var _ repositories.RequestRepository = (*RequestRepository)(nil)
