package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/meridian-commerce/api/internal/domain"
	pfirestore "github.com/meridian-commerce/api/internal/platform/firestore"
	"github.com/meridian-commerce/api/internal/repositories"
)

const brandCollection = "brands"

type brandDocument struct {
	Name      string    `firestore:"name"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// BrandRepository reads brand reference records from Firestore.
type BrandRepository struct {
	base *pfirestore.BaseRepository[brandDocument]
}

// NewBrandRepository constructs a Firestore-backed brand repository.
func NewBrandRepository(provider *pfirestore.Provider) (*BrandRepository, error) {
	if provider == nil {
		return nil, errors.New("brand repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[brandDocument](provider, brandCollection, nil, nil)
	return &BrandRepository{base: base}, nil
}

// FindByID loads one brand.
func (r *BrandRepository) FindByID(ctx context.Context, brandID string) (domain.Brand, error) {
	if r == nil || r.base == nil {
		return domain.Brand{}, errors.New("brand repository not initialised")
	}
	doc, err := r.base.Get(ctx, brandID)
	if err != nil {
		return domain.Brand{}, err
	}
	return domain.Brand{ID: doc.ID, Name: doc.Data.Name, CreatedAt: doc.Data.CreatedAt}, nil
}

// List returns every brand ordered by name.
func (r *BrandRepository) List(ctx context.Context) ([]domain.Brand, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("brand repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	brands := make([]domain.Brand, 0, len(docs))
	for _, doc := range docs {
		brands = append(brands, domain.Brand{ID: doc.ID, Name: doc.Data.Name, CreatedAt: doc.Data.CreatedAt})
	}
	return brands, nil
}

var _ repositories.BrandRepository = (*BrandRepository)(nil)
