package domain

import (
	"time"
)

// QuarantineCategoryID is the reserved category that receives soft-deleted
// categories and the products reassigned away from them. It is a protected
// singleton and can never be deleted.
const QuarantineCategoryID = "quarantine"

// MaxCategoryDepth caps the category forest at four levels.
const MaxCategoryDepth = 4

// Category is a node in the catalog's category forest. DisplayOrder values
// among non-deleted siblings of the same parent form a dense 1..N sequence.
type Category struct {
	ID              string
	Name            string
	Title           string
	Description     string
	ImageURL        string
	ParentID        string
	Level           int
	DisplayOrder    int
	HasChildren     bool
	IsDeleted       bool
	IsRecentlyAdded bool
	HasParts        bool
	ModelNumbers    []string
	Attributes      map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsQuarantine reports whether the category is the reserved quarantine node.
func (c Category) IsQuarantine() bool {
	return c.ID == QuarantineCategoryID
}

// Product is a catalog item. Its ordering scope is the subcategory when one is
// set, otherwise the category; DisplayOrder is dense within that scope among
// published, non-deleted products. Amounts are minor currency units.
type Product struct {
	ID            string
	Name          string
	ProductCode   string
	Description   string
	Price         int64
	CostPrice     int64
	Pricing       PricingTable
	CategoryID    string
	SubCategoryID string
	BrandID       string
	Stock         int64
	SKU           string
	Tags          []string
	Attributes    map[string]string
	ImageURL      string
	Published     bool
	Featured      bool
	MostPopular   bool
	MostSold      bool
	DisplayOrder  int
	// VariantOfID links a variation record to its parent product. Deleting
	// the parent cascades to its variations.
	VariantOfID string
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderingScope returns the identifier of the sibling group that governs the
// product's display order: the subcategory when present, else the category.
func (p Product) OrderingScope() string {
	if p.SubCategoryID != "" {
		return p.SubCategoryID
	}
	return p.CategoryID
}

// PricedProduct pairs a product with the unit price resolved for one tier.
type PricedProduct struct {
	Product   Product
	Tier      Tier
	UnitPrice int64
}

// SpecialSets groups the three independently capped curated product lists,
// each resolved to a single caller tier.
type SpecialSets struct {
	Tier        Tier
	Featured    []PricedProduct
	MostPopular []PricedProduct
	MostSold    []PricedProduct
}

// Brand is a lightweight reference entity validated on product writes.
type Brand struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
