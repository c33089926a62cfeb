package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/platform/cache"
	"github.com/meridian-commerce/api/internal/repositories"
)

var (
	errCategoryRepositoryRequired = errors.New("category service: category repository is required")
	errCategoryProductsRequired   = errors.New("category service: product repository is required")
	errCategoryClockRequired      = errors.New("category service: clock is required")
)

// ErrCategoryInvalidInput indicates the caller supplied invalid input.
var ErrCategoryInvalidInput = errors.New("category service: invalid input")

// ErrCategoryNotFound indicates the requested category does not exist.
var ErrCategoryNotFound = errors.New("category service: not found")

// ErrCategoryConflict indicates the category could not be written due to a competing state.
var ErrCategoryConflict = errors.New("category service: conflict")

// ErrCategoryUnavailable indicates the backend rejected or could not serve the request.
var ErrCategoryUnavailable = errors.New("category service: unavailable")

// ErrCategoryDuplicateName indicates another category at the same level already uses the name.
var ErrCategoryDuplicateName = errors.New("category service: duplicate name at level")

// ErrCategoryMaxDepth indicates the operation would push the tree past four levels.
var ErrCategoryMaxDepth = errors.New("category service: max depth exceeded")

// ErrCategoryBoundary indicates a reorder hit the first or last sibling position.
var ErrCategoryBoundary = errors.New("category service: boundary reached")

// ErrCategoryProtected indicates the quarantine category cannot be mutated this way.
var ErrCategoryProtected = errors.New("category service: protected category")

const (
	categoryListCacheKey    = "public"
	defaultCategoryCacheTTL = time.Minute
	defaultOrderRepairEvery = 24 * time.Hour
	maxCategoryNameLength   = 120
	maxCategoryDisplayExtra = 1
)

// CategoryServiceDeps wires the repositories and cache for category tree operations.
type CategoryServiceDeps struct {
	Categories  repositories.CategoryRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	CacheTTL    time.Duration
	RepairEvery time.Duration
	Logger      EventLogger
	IDGenerator func() string
}

type categoryService struct {
	categories repositories.CategoryRepository
	products   repositories.ProductRepository
	now        func() time.Time
	newID      func() string
	logger     EventLogger
	sanitizer  *bluemonday.Policy

	listCache *cache.Store[[]domain.Category]

	repairMu    sync.Mutex
	repairEvery time.Duration
	lastRepair  time.Time
}

// NewCategoryService constructs a CategoryService enforcing dependency validation.
func NewCategoryService(deps CategoryServiceDeps) (CategoryService, error) {
	if deps.Categories == nil {
		return nil, errCategoryRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCategoryProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCategoryClockRequired
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultCategoryCacheTTL
	}
	repairEvery := deps.RepairEvery
	if repairEvery <= 0 {
		repairEvery = defaultOrderRepairEvery
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	now := func() time.Time { return deps.Clock().UTC() }
	return &categoryService{
		categories:  deps.Categories,
		products:    deps.Products,
		now:         now,
		newID:       idGen,
		logger:      logger,
		sanitizer:   bluemonday.UGCPolicy(),
		listCache:   cache.New[[]domain.Category](ttl, now),
		repairEvery: repairEvery,
	}, nil
}

// Create inserts a category, computing its level from the parent chain and
// assigning a display order by insertion policy: explicit positions shift
// every sibling at or after the position up by one, otherwise the category
// appends after the current last sibling.
func (s *categoryService) Create(ctx context.Context, cmd CreateCategoryCommand) (Category, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCategoryInvalidInput)
	}
	if len(name) > maxCategoryNameLength {
		return Category{}, fmt.Errorf("%w: name exceeds %d characters", ErrCategoryInvalidInput, maxCategoryNameLength)
	}

	parentID := strings.TrimSpace(cmd.ParentID)
	level := 1
	var parent domain.Category
	if parentID != "" {
		// An unknown parent is rejected rather than silently treated as root.
		found, err := s.categories.FindByID(ctx, parentID)
		if err != nil {
			return Category{}, s.translateRepoError(err)
		}
		parent = found
		level = parent.Level + 1
		if level > domain.MaxCategoryDepth {
			return Category{}, fmt.Errorf("%w: parent is at level %d", ErrCategoryMaxDepth, parent.Level)
		}
	}

	if existing, err := s.categories.FindByNameAtLevel(ctx, name, level); err == nil && existing.ID != "" {
		return Category{}, fmt.Errorf("%w: %q", ErrCategoryDuplicateName, name)
	} else if err != nil && !isRepoNotFound(err) {
		return Category{}, s.translateRepoError(err)
	}

	siblings, err := s.categories.ListChildren(ctx, parentID)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}

	now := s.now()
	order := len(siblings) + 1
	if cmd.DisplayOrder != nil {
		requested := *cmd.DisplayOrder
		if requested < 1 || requested > len(siblings)+maxCategoryDisplayExtra {
			return Category{}, fmt.Errorf("%w: display order must be between 1 and %d", ErrCategoryInvalidInput, len(siblings)+1)
		}
		if err := s.shiftSiblingsUp(ctx, siblings, requested, now); err != nil {
			return Category{}, err
		}
		order = requested
	}

	category := domain.Category{
		ID:              s.newID(),
		Name:            name,
		Title:           strings.TrimSpace(cmd.Title),
		Description:     s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		ImageURL:        strings.TrimSpace(cmd.ImageURL),
		ParentID:        parentID,
		Level:           level,
		DisplayOrder:    order,
		IsRecentlyAdded: cmd.IsRecentlyAdded,
		HasParts:        cmd.HasParts,
		ModelNumbers:    append([]string(nil), cmd.ModelNumbers...),
		Attributes:      cloneStringMap(cmd.Attributes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		return Category{}, s.translateRepoError(err)
	}

	if parentID != "" && !parent.HasChildren {
		parent.HasChildren = true
		parent.UpdatedAt = now
		if err := s.categories.Update(ctx, parent); err != nil {
			s.logger(ctx, "category.parent_flag_update_failed", map[string]any{"categoryId": parentID, "error": err.Error()})
		}
	}

	s.listCache.Invalidate(categoryListCacheKey)
	return category, nil
}

// Update applies partial field changes. A display-order change cascades
// through the sibling group, distinguishing moves toward the front (shift the
// intervening range up) from moves toward the back (shift it down).
func (s *categoryService) Update(ctx context.Context, cmd UpdateCategoryCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCategoryInvalidInput)
	}

	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	if category.IsQuarantine() {
		return Category{}, ErrCategoryProtected
	}

	now := s.now()
	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Category{}, fmt.Errorf("%w: name cannot be empty", ErrCategoryInvalidInput)
		}
		if !strings.EqualFold(name, category.Name) {
			if existing, err := s.categories.FindByNameAtLevel(ctx, name, category.Level); err == nil && existing.ID != "" && existing.ID != category.ID {
				return Category{}, fmt.Errorf("%w: %q", ErrCategoryDuplicateName, name)
			} else if err != nil && !isRepoNotFound(err) {
				return Category{}, s.translateRepoError(err)
			}
		}
		category.Name = name
	}
	if cmd.Title != nil {
		category.Title = strings.TrimSpace(*cmd.Title)
	}
	if cmd.Description != nil {
		category.Description = s.sanitizer.Sanitize(strings.TrimSpace(*cmd.Description))
	}
	if cmd.ImageURL != nil {
		category.ImageURL = strings.TrimSpace(*cmd.ImageURL)
	}
	if cmd.IsRecentlyAdded != nil {
		category.IsRecentlyAdded = *cmd.IsRecentlyAdded
	}
	if cmd.HasParts != nil {
		category.HasParts = *cmd.HasParts
	}
	if cmd.ModelNumbers != nil {
		category.ModelNumbers = append([]string(nil), cmd.ModelNumbers...)
	}
	if cmd.Attributes != nil {
		category.Attributes = cloneStringMap(cmd.Attributes)
	}

	if cmd.DisplayOrder != nil && *cmd.DisplayOrder != category.DisplayOrder {
		siblings, err := s.categories.ListChildren(ctx, category.ParentID)
		if err != nil {
			return Category{}, s.translateRepoError(err)
		}
		requested := *cmd.DisplayOrder
		if requested < 1 || requested > len(siblings) {
			return Category{}, fmt.Errorf("%w: display order must be between 1 and %d", ErrCategoryInvalidInput, len(siblings))
		}
		if err := s.moveWithinSiblings(ctx, siblings, category.ID, category.DisplayOrder, requested, now); err != nil {
			return Category{}, err
		}
		category.DisplayOrder = requested
	}

	category.UpdatedAt = now
	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, s.translateRepoError(err)
	}
	s.listCache.Invalidate(categoryListCacheKey)
	return category, nil
}

// Get returns a single category by id.
func (s *categoryService) Get(ctx context.Context, categoryID string) (Category, error) {
	trimmed := strings.TrimSpace(categoryID)
	if trimmed == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCategoryInvalidInput)
	}
	category, err := s.categories.FindByID(ctx, trimmed)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	return category, nil
}

// Reorder swaps the category's display order with its adjacent sibling.
func (s *categoryService) Reorder(ctx context.Context, categoryID string, direction ReorderDirection) (Category, error) {
	trimmed := strings.TrimSpace(categoryID)
	if trimmed == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCategoryInvalidInput)
	}
	if direction != ReorderUp && direction != ReorderDown {
		return Category{}, fmt.Errorf("%w: direction must be up or down", ErrCategoryInvalidInput)
	}

	category, err := s.categories.FindByID(ctx, trimmed)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}

	siblings, err := s.categories.ListChildren(ctx, category.ParentID)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	sortCategoriesByOrder(siblings)

	idx := -1
	for i, sibling := range siblings {
		if sibling.ID == category.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Category{}, ErrCategoryNotFound
	}

	swap := idx - 1
	if direction == ReorderDown {
		swap = idx + 1
	}
	if swap < 0 || swap >= len(siblings) {
		return Category{}, fmt.Errorf("%w: already %s sibling", ErrCategoryBoundary, boundaryLabel(direction))
	}

	now := s.now()
	neighbour := siblings[swap]
	if err := s.categories.SetDisplayOrder(ctx, neighbour.ID, category.DisplayOrder, now); err != nil {
		return Category{}, s.translateRepoError(err)
	}
	if err := s.categories.SetDisplayOrder(ctx, category.ID, neighbour.DisplayOrder, now); err != nil {
		return Category{}, s.translateRepoError(err)
	}

	category.DisplayOrder, neighbour.DisplayOrder = neighbour.DisplayOrder, category.DisplayOrder
	s.listCache.Invalidate(categoryListCacheKey)
	return category, nil
}

// Move re-parents a category, recomputing levels for the whole subtree with
// an iterative walk bounded by the maximum tree depth.
func (s *categoryService) Move(ctx context.Context, categoryID string, newParentID string) (Category, error) {
	trimmed := strings.TrimSpace(categoryID)
	if trimmed == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCategoryInvalidInput)
	}
	category, err := s.categories.FindByID(ctx, trimmed)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	if category.IsQuarantine() {
		return Category{}, ErrCategoryProtected
	}

	newParentID = strings.TrimSpace(newParentID)
	if newParentID == category.ParentID {
		return category, nil
	}

	newLevel := 1
	var newParent domain.Category
	if newParentID != "" {
		parent, err := s.categories.FindByID(ctx, newParentID)
		if err != nil {
			return Category{}, s.translateRepoError(err)
		}
		newParent = parent
		newLevel = parent.Level + 1
	}

	subtree, err := s.collectSubtree(ctx, category)
	if err != nil {
		return Category{}, err
	}
	for _, node := range subtree {
		if node.ID == newParentID {
			return Category{}, fmt.Errorf("%w: cannot move a category under its own descendant", ErrCategoryConflict)
		}
	}
	if newLevel+subtreeDepth(subtree, category) > domain.MaxCategoryDepth {
		return Category{}, fmt.Errorf("%w: subtree would exceed level %d", ErrCategoryMaxDepth, domain.MaxCategoryDepth)
	}

	oldParentID := category.ParentID
	now := s.now()

	newSiblings, err := s.categories.ListChildren(ctx, newParentID)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}

	levelShift := newLevel - category.Level
	category.ParentID = newParentID
	category.Level = newLevel
	category.DisplayOrder = len(newSiblings) + 1
	category.UpdatedAt = now
	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, s.translateRepoError(err)
	}
	for _, node := range subtree {
		if node.ID == category.ID {
			continue
		}
		node.Level += levelShift
		node.UpdatedAt = now
		if err := s.categories.Update(ctx, node); err != nil {
			return Category{}, s.translateRepoError(err)
		}
	}

	if newParentID != "" && !newParent.HasChildren {
		newParent.HasChildren = true
		newParent.UpdatedAt = now
		if err := s.categories.Update(ctx, newParent); err != nil {
			s.logger(ctx, "category.parent_flag_update_failed", map[string]any{"categoryId": newParentID, "error": err.Error()})
		}
	}
	s.refreshParentAfterRemoval(ctx, oldParentID, now)

	s.listCache.Invalidate(categoryListCacheKey)
	return category, nil
}

// Delete removes a category per the quarantine policy: a category already
// under quarantine is soft-deleted in place together with its products, while
// any other category has its entire subtree re-parented directly under the
// quarantine node at level 1 and its products reassigned there.
func (s *categoryService) Delete(ctx context.Context, categoryID string) error {
	trimmed := strings.TrimSpace(categoryID)
	if trimmed == "" {
		return fmt.Errorf("%w: category id is required", ErrCategoryInvalidInput)
	}
	category, err := s.categories.FindByID(ctx, trimmed)
	if err != nil {
		return s.translateRepoError(err)
	}
	if category.IsQuarantine() {
		return fmt.Errorf("%w: the quarantine category cannot be deleted", ErrCategoryProtected)
	}

	now := s.now()

	if category.ParentID == domain.QuarantineCategoryID {
		category.IsDeleted = true
		category.UpdatedAt = now
		if err := s.categories.Update(ctx, category); err != nil {
			return s.translateRepoError(err)
		}
		if err := s.softDeleteProducts(ctx, []string{category.ID}, now); err != nil {
			s.logger(ctx, "category.product_soft_delete_failed", map[string]any{"categoryId": category.ID, "error": err.Error()})
		}
		s.listCache.Invalidate(categoryListCacheKey)
		return nil
	}

	subtree, err := s.collectSubtree(ctx, category)
	if err != nil {
		return err
	}

	quarantineChildren, err := s.categories.ListChildren(ctx, domain.QuarantineCategoryID)
	if err != nil {
		return s.translateRepoError(err)
	}
	nextOrder := len(quarantineChildren) + 1

	subtreeIDs := make([]string, 0, len(subtree))
	for _, node := range subtree {
		subtreeIDs = append(subtreeIDs, node.ID)
		node.ParentID = domain.QuarantineCategoryID
		node.Level = 1
		node.HasChildren = false
		node.DisplayOrder = nextOrder
		node.UpdatedAt = now
		nextOrder++
		if err := s.categories.Update(ctx, node); err != nil {
			return s.translateRepoError(err)
		}
	}

	if err := s.reassignProducts(ctx, subtreeIDs, now); err != nil {
		s.logger(ctx, "category.product_reassign_failed", map[string]any{"categoryId": category.ID, "error": err.Error()})
	}

	quarantine, err := s.categories.FindByID(ctx, domain.QuarantineCategoryID)
	if err == nil && !quarantine.HasChildren {
		quarantine.HasChildren = true
		quarantine.UpdatedAt = now
		if err := s.categories.Update(ctx, quarantine); err != nil {
			s.logger(ctx, "category.quarantine_flag_update_failed", map[string]any{"error": err.Error()})
		}
	}

	s.refreshParentAfterRemoval(ctx, category.ParentID, now)
	if _, err := s.ValidateAndRepairOrdering(ctx, category.ParentID); err != nil {
		s.logger(ctx, "category.order_repair_failed", map[string]any{"parentId": category.ParentID, "error": err.Error()})
	}

	s.listCache.Invalidate(categoryListCacheKey)
	return nil
}

// ValidateAndRepairOrdering renumbers a sibling group to a dense 1..N
// sequence. The operation is an idempotent repair and returns how many
// categories were rewritten.
func (s *categoryService) ValidateAndRepairOrdering(ctx context.Context, parentID string) (int, error) {
	siblings, err := s.categories.ListChildren(ctx, strings.TrimSpace(parentID))
	if err != nil {
		return 0, s.translateRepoError(err)
	}
	sortCategoriesByOrder(siblings)

	now := s.now()
	repaired := 0
	for i, sibling := range siblings {
		want := i + 1
		if sibling.DisplayOrder == want {
			continue
		}
		if err := s.categories.SetDisplayOrder(ctx, sibling.ID, want, now); err != nil {
			return repaired, s.translateRepoError(err)
		}
		repaired++
	}
	if repaired > 0 {
		s.listCache.Invalidate(categoryListCacheKey)
	}
	return repaired, nil
}

// ListPublic returns the non-deleted categories outside quarantine, ordered
// by (level, displayOrder). Results are cached with a short TTL; writes
// invalidate the cache explicitly. A throttled ordering repair runs
// opportunistically after cache misses.
func (s *categoryService) ListPublic(ctx context.Context) ([]Category, error) {
	if cached, ok := s.listCache.Get(categoryListCacheKey); ok {
		return cloneCategories(cached), nil
	}

	categories, err := s.categories.ListPublic(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].Level != categories[j].Level {
			return categories[i].Level < categories[j].Level
		}
		return categories[i].DisplayOrder < categories[j].DisplayOrder
	})

	s.listCache.Put(categoryListCacheKey, cloneCategories(categories))
	s.maybeRepairAll(ctx, categories)
	return categories, nil
}

// maybeRepairAll runs the dense-ordering repair across every sibling group at
// most once per repair interval. Failures are logged; the listing already
// returned is unaffected.
func (s *categoryService) maybeRepairAll(ctx context.Context, categories []domain.Category) {
	s.repairMu.Lock()
	now := s.now()
	if !s.lastRepair.IsZero() && now.Sub(s.lastRepair) < s.repairEvery {
		s.repairMu.Unlock()
		return
	}
	s.lastRepair = now
	s.repairMu.Unlock()

	parents := make(map[string]struct{})
	for _, category := range categories {
		parents[category.ParentID] = struct{}{}
	}
	for parentID := range parents {
		if _, err := s.ValidateAndRepairOrdering(ctx, parentID); err != nil {
			s.logger(ctx, "category.order_repair_failed", map[string]any{"parentId": parentID, "error": err.Error()})
		}
	}
}

func (s *categoryService) shiftSiblingsUp(ctx context.Context, siblings []domain.Category, from int, now time.Time) error {
	sortCategoriesByOrder(siblings)
	// Walk back to front so each single-document update lands on a vacant
	// position.
	for i := len(siblings) - 1; i >= 0; i-- {
		if siblings[i].DisplayOrder < from {
			break
		}
		if err := s.categories.SetDisplayOrder(ctx, siblings[i].ID, siblings[i].DisplayOrder+1, now); err != nil {
			return s.translateRepoError(err)
		}
	}
	return nil
}

func (s *categoryService) moveWithinSiblings(ctx context.Context, siblings []domain.Category, movedID string, oldPos, newPos int, now time.Time) error {
	sortCategoriesByOrder(siblings)
	if newPos < oldPos {
		// Moving toward the front: every sibling in [newPos, oldPos) shifts
		// one position later to make room.
		for i := len(siblings) - 1; i >= 0; i-- {
			order := siblings[i].DisplayOrder
			if siblings[i].ID == movedID || order < newPos || order >= oldPos {
				continue
			}
			if err := s.categories.SetDisplayOrder(ctx, siblings[i].ID, order+1, now); err != nil {
				return s.translateRepoError(err)
			}
		}
		return nil
	}
	// Moving toward the back: every sibling in (oldPos, newPos] shifts one
	// position earlier to close the gap.
	for _, sibling := range siblings {
		order := sibling.DisplayOrder
		if sibling.ID == movedID || order <= oldPos || order > newPos {
			continue
		}
		if err := s.categories.SetDisplayOrder(ctx, sibling.ID, order-1, now); err != nil {
			return s.translateRepoError(err)
		}
	}
	return nil
}

// collectSubtree gathers the category and all descendants breadth-first. The
// walk is bounded by the modeled maximum depth instead of recursing.
func (s *categoryService) collectSubtree(ctx context.Context, root domain.Category) ([]domain.Category, error) {
	nodes := []domain.Category{root}
	frontier := []domain.Category{root}
	for depth := 0; depth < domain.MaxCategoryDepth && len(frontier) > 0; depth++ {
		var next []domain.Category
		for _, node := range frontier {
			children, err := s.categories.ListChildren(ctx, node.ID)
			if err != nil {
				return nil, s.translateRepoError(err)
			}
			next = append(next, children...)
		}
		nodes = append(nodes, next...)
		frontier = next
	}
	return nodes, nil
}

func (s *categoryService) reassignProducts(ctx context.Context, categoryIDs []string, now time.Time) error {
	products, err := s.products.ListByCategories(ctx, categoryIDs)
	if err != nil {
		return s.translateRepoError(err)
	}
	for _, product := range products {
		product.CategoryID = domain.QuarantineCategoryID
		product.SubCategoryID = ""
		product.UpdatedAt = now
		if err := s.products.Update(ctx, product); err != nil {
			return s.translateRepoError(err)
		}
	}
	return nil
}

func (s *categoryService) softDeleteProducts(ctx context.Context, categoryIDs []string, now time.Time) error {
	products, err := s.products.ListByCategories(ctx, categoryIDs)
	if err != nil {
		return s.translateRepoError(err)
	}
	for _, product := range products {
		product.IsDeleted = true
		product.UpdatedAt = now
		if err := s.products.Update(ctx, product); err != nil {
			return s.translateRepoError(err)
		}
	}
	return nil
}

// refreshParentAfterRemoval recomputes HasChildren on a parent whose child
// set just shrank. Best effort; the primary mutation already committed.
func (s *categoryService) refreshParentAfterRemoval(ctx context.Context, parentID string, now time.Time) {
	if strings.TrimSpace(parentID) == "" {
		return
	}
	remaining, err := s.categories.ListChildren(ctx, parentID)
	if err != nil {
		s.logger(ctx, "category.parent_refresh_failed", map[string]any{"parentId": parentID, "error": err.Error()})
		return
	}
	parent, err := s.categories.FindByID(ctx, parentID)
	if err != nil {
		s.logger(ctx, "category.parent_refresh_failed", map[string]any{"parentId": parentID, "error": err.Error()})
		return
	}
	hasChildren := len(remaining) > 0
	if parent.HasChildren == hasChildren {
		return
	}
	parent.HasChildren = hasChildren
	parent.UpdatedAt = now
	if err := s.categories.Update(ctx, parent); err != nil {
		s.logger(ctx, "category.parent_flag_update_failed", map[string]any{"categoryId": parentID, "error": err.Error()})
	}
}

func (s *categoryService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCategoryNotFound
		case repoErr.IsConflict():
			return ErrCategoryConflict
		}
	}
	return ErrCategoryUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func sortCategoriesByOrder(categories []domain.Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].DisplayOrder < categories[j].DisplayOrder
	})
}

func subtreeDepth(nodes []domain.Category, root domain.Category) int {
	deepest := root.Level
	for _, node := range nodes {
		if node.Level > deepest {
			deepest = node.Level
		}
	}
	return deepest - root.Level
}

func boundaryLabel(direction ReorderDirection) string {
	if direction == ReorderUp {
		return "the first"
	}
	return "the last"
}

func cloneCategories(categories []domain.Category) []domain.Category {
	if len(categories) == 0 {
		return []domain.Category{}
	}
	dup := make([]domain.Category, len(categories))
	copy(dup, categories)
	for i := range dup {
		dup[i].ModelNumbers = append([]string(nil), dup[i].ModelNumbers...)
		dup[i].Attributes = cloneStringMap(dup[i].Attributes)
	}
	return dup
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
