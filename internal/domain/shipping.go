package domain

// Shipping fee brackets in minor currency units, keyed off the order's item
// subtotal. Ground orders above the top bracket ship free; overnight orders
// above the top bracket fall back to a flat rate.
const (
	groundTier1Below = 5_100
	groundTier2Below = 25_100
	groundTier3Below = 50_000

	overnightTier1Below = 5_100
	overnightTier2Below = 25_100
	overnightTier3Below = 60_000
	overnightTier4Below = 80_000
)

// ShippingFeeFor returns the shipping fee for a method given the order's item
// subtotal. Unknown methods cost nothing.
func ShippingFeeFor(method ShippingMethod, subtotal int64) int64 {
	switch method {
	case ShippingGround:
		switch {
		case subtotal < groundTier1Below:
			return 1_000
		case subtotal < groundTier2Below:
			return 2_000
		case subtotal < groundTier3Below:
			return 3_000
		default:
			return 0
		}
	case ShippingOvernight:
		switch {
		case subtotal < overnightTier1Below:
			return 1_500
		case subtotal < overnightTier2Below:
			return 2_500
		case subtotal < overnightTier3Below:
			return 3_500
		case subtotal < overnightTier4Below:
			return 4_900
		default:
			return 3_000
		}
	default:
		return 0
	}
}
