package domain

import (
	"math"
	"strings"
)

// Tier identifies one of the four B2B pricing classes. Franchise is the
// least-discounted tier and the default for unknown callers.
type Tier string

const (
	TierWholesale  Tier = "Wholesale"
	TierRetailer   Tier = "Retailer"
	TierChainStore Tier = "ChainStore"
	TierFranchise  Tier = "Franchise"
)

// Tiers lists every pricing tier in schedule order.
func Tiers() []Tier {
	return []Tier{TierWholesale, TierRetailer, TierChainStore, TierFranchise}
}

// TierPrice is a single tier's entry in a product's pricing schedule.
// A zero Price means the entry is absent and the base price applies.
type TierPrice struct {
	Price int64
}

// PricingTable holds the per-tier price schedule for a product. Amounts are
// minor currency units (cents).
type PricingTable struct {
	Wholesale  TierPrice
	Retailer   TierPrice
	ChainStore TierPrice
	Franchise  TierPrice
}

// Entry returns the schedule entry for the given tier.
func (p PricingTable) Entry(tier Tier) TierPrice {
	switch tier {
	case TierWholesale:
		return p.Wholesale
	case TierRetailer:
		return p.Retailer
	case TierChainStore:
		return p.ChainStore
	default:
		return p.Franchise
	}
}

// Complete reports whether every tier carries a positive price. Creation
// requires a complete schedule; legacy records may be partial.
func (p PricingTable) Complete() bool {
	for _, tier := range Tiers() {
		if p.Entry(tier).Price <= 0 {
			return false
		}
	}
	return true
}

// TierForRole maps a caller role string to a pricing tier. Matching is
// case-insensitive and unrecognised or empty roles resolve to Franchise so
// unauthenticated callers see list price.
func TierForRole(role string) Tier {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "wholesale":
		return TierWholesale
	case "retailer":
		return TierRetailer
	case "chainstore", "chain store":
		return TierChainStore
	default:
		return TierFranchise
	}
}

// PriceForTier resolves the effective unit price of a product snapshot for a
// tier. Missing or non-positive tier entries fall back to the base price.
// The resolution is a pure function of its inputs.
func PriceForTier(product Product, tier Tier) int64 {
	if entry := product.Pricing.Entry(tier); entry.Price > 0 {
		return entry.Price
	}
	return product.Price
}

// DerivePriceFromPercent computes a tier price as a percentage of cost,
// rounded to the nearest cent. Used by bulk import only; live pricing always
// reads the stored schedule.
func DerivePriceFromPercent(costPrice int64, percent float64) int64 {
	if costPrice <= 0 || percent <= 0 {
		return 0
	}
	return int64(math.Round(float64(costPrice) * percent / 100))
}
