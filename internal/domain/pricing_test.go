package domain

import "testing"

func TestPriceForTierFallsBackToBasePrice(t *testing.T) {
	product := Product{
		Price: 1000,
		Pricing: PricingTable{
			Wholesale: TierPrice{Price: 700},
			Retailer:  TierPrice{Price: 850},
		},
	}

	tests := []struct {
		tier Tier
		want int64
	}{
		{TierWholesale, 700},
		{TierRetailer, 850},
		{TierChainStore, 1000},
		{TierFranchise, 1000},
	}
	for _, tc := range tests {
		if got := PriceForTier(product, tc.tier); got != tc.want {
			t.Errorf("PriceForTier(%s) = %d, want %d", tc.tier, got, tc.want)
		}
	}
}

func TestTierForRole(t *testing.T) {
	tests := []struct {
		role string
		want Tier
	}{
		{"Wholesale", TierWholesale},
		{"wholesale", TierWholesale},
		{"RETAILER", TierRetailer},
		{"ChainStore", TierChainStore},
		{"chain store", TierChainStore},
		{"Franchise", TierFranchise},
		{"", TierFranchise},
		{"admin", TierFranchise},
	}
	for _, tc := range tests {
		if got := TierForRole(tc.role); got != tc.want {
			t.Errorf("TierForRole(%q) = %s, want %s", tc.role, got, tc.want)
		}
	}
}

func TestDerivePriceFromPercent(t *testing.T) {
	tests := []struct {
		cost    int64
		percent float64
		want    int64
	}{
		{1000, 150, 1500},
		{1000, 135.5, 1355},
		{333, 133.3, 444},
		{0, 150, 0},
		{1000, 0, 0},
		{-5, 150, 0},
	}
	for _, tc := range tests {
		if got := DerivePriceFromPercent(tc.cost, tc.percent); got != tc.want {
			t.Errorf("DerivePriceFromPercent(%d, %v) = %d, want %d", tc.cost, tc.percent, got, tc.want)
		}
	}
}
