package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/meridian-commerce/api/internal/domain"
	pfirestore "github.com/meridian-commerce/api/internal/platform/firestore"
	"github.com/meridian-commerce/api/internal/repositories"
)

const categoryCollection = "categories"

type categoryDocument struct {
	Name            string            `firestore:"name"`
	NameFolded      string            `firestore:"nameFolded"`
	Title           string            `firestore:"title,omitempty"`
	Description     string            `firestore:"description,omitempty"`
	ImageURL        string            `firestore:"imageUrl,omitempty"`
	ParentID        string            `firestore:"parentId"`
	Level           int               `firestore:"level"`
	DisplayOrder    int               `firestore:"displayOrder"`
	HasChildren     bool              `firestore:"hasChildren"`
	IsDeleted       bool              `firestore:"isDeleted"`
	IsRecentlyAdded bool              `firestore:"isRecentlyAdded"`
	HasParts        bool              `firestore:"hasParts"`
	ModelNumbers    []string          `firestore:"modelNumbers,omitempty"`
	Attributes      map[string]string `firestore:"attributes,omitempty"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
}

// CategoryRepository persists the category forest in Firestore.
type CategoryRepository struct {
	base     *pfirestore.BaseRepository[categoryDocument]
	provider *pfirestore.Provider
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection, nil, nil)
	return &CategoryRepository{base: base, provider: provider}, nil
}

// Insert writes a new category document keyed by its id.
func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	if strings.TrimSpace(category.ID) == "" {
		return errors.New("category repository: category id is required")
	}
	_, err := r.base.Set(ctx, category.ID, fromDomainCategory(category))
	return err
}

// Update overwrites an existing category document.
func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	return r.Insert(ctx, category)
}

// FindByID loads one category.
func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return toDomainCategory(doc.ID, doc.Data), nil
}

// FindByNameAtLevel locates a non-deleted category by folded name within one
// tree level.
func (r *CategoryRepository) FindByNameAtLevel(ctx context.Context, name string, level int) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	folded := strings.ToLower(strings.TrimSpace(name))
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("nameFolded", "==", folded).
			Where("level", "==", level).
			Where("isDeleted", "==", false).
			Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) == 0 {
		return domain.Category{}, notFoundError("categories.findByNameAtLevel")
	}
	return toDomainCategory(docs[0].ID, docs[0].Data), nil
}

// ListChildren returns the non-deleted direct children of parentID ordered by
// display order.
func (r *CategoryRepository) ListChildren(ctx context.Context, parentID string) ([]domain.Category, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("category repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("parentId", "==", strings.TrimSpace(parentID)).
			Where("isDeleted", "==", false).
			OrderBy("displayOrder", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, toDomainCategory(doc.ID, doc.Data))
	}
	return categories, nil
}

// ListPublic returns all non-deleted categories outside quarantine ordered by
// (level, displayOrder). The quarantine subtree is filtered client-side since
// Firestore cannot express the negated subtree predicate in one query.
func (r *CategoryRepository) ListPublic(ctx context.Context) ([]domain.Category, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("category repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isDeleted", "==", false)
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]categoryDocument, len(docs))
	ids := make(map[string]string, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc.Data
		ids[doc.ID] = doc.Data.ParentID
	}

	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		if underQuarantine(doc.ID, ids) {
			continue
		}
		categories = append(categories, toDomainCategory(doc.ID, doc.Data))
	}
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].Level != categories[j].Level {
			return categories[i].Level < categories[j].Level
		}
		return categories[i].DisplayOrder < categories[j].DisplayOrder
	})
	return categories, nil
}

// SetDisplayOrder writes a single sibling's display order.
func (r *CategoryRepository) SetDisplayOrder(ctx context.Context, categoryID string, displayOrder int, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	_, err := r.base.Update(ctx, categoryID, []firestore.Update{
		{Path: "displayOrder", Value: displayOrder},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

// underQuarantine walks parent links to decide whether a node sits inside the
// quarantine subtree.
func underQuarantine(id string, parents map[string]string) bool {
	seen := 0
	for id != "" && seen <= domain.MaxCategoryDepth {
		if id == domain.QuarantineCategoryID {
			return true
		}
		id = parents[id]
		seen++
	}
	return false
}

func fromDomainCategory(category domain.Category) categoryDocument {
	return categoryDocument{
		Name:            strings.TrimSpace(category.Name),
		NameFolded:      strings.ToLower(strings.TrimSpace(category.Name)),
		Title:           strings.TrimSpace(category.Title),
		Description:     category.Description,
		ImageURL:        strings.TrimSpace(category.ImageURL),
		ParentID:        strings.TrimSpace(category.ParentID),
		Level:           category.Level,
		DisplayOrder:    category.DisplayOrder,
		HasChildren:     category.HasChildren,
		IsDeleted:       category.IsDeleted,
		IsRecentlyAdded: category.IsRecentlyAdded,
		HasParts:        category.HasParts,
		ModelNumbers:    append([]string(nil), category.ModelNumbers...),
		Attributes:      cloneStringValues(category.Attributes),
		CreatedAt:       category.CreatedAt.UTC(),
		UpdatedAt:       category.UpdatedAt.UTC(),
	}
}

func toDomainCategory(id string, doc categoryDocument) domain.Category {
	return domain.Category{
		ID:              id,
		Name:            doc.Name,
		Title:           doc.Title,
		Description:     doc.Description,
		ImageURL:        doc.ImageURL,
		ParentID:        doc.ParentID,
		Level:           doc.Level,
		DisplayOrder:    doc.DisplayOrder,
		HasChildren:     doc.HasChildren,
		IsDeleted:       doc.IsDeleted,
		IsRecentlyAdded: doc.IsRecentlyAdded,
		HasParts:        doc.HasParts,
		ModelNumbers:    append([]string(nil), doc.ModelNumbers...),
		Attributes:      cloneStringValues(doc.Attributes),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func cloneStringValues(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)
