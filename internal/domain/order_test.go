package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusProcessing, OrderStatusDelivered, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusProcessing, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}
	for _, tc := range tests {
		order := Order{Status: tc.from}
		if got := order.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %t, want %t", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestItemSubtotal(t *testing.T) {
	order := Order{Items: []OrderItem{
		{ProductID: "p1", Quantity: 3, UnitPrice: 800},
		{ProductID: "p2", Quantity: 1, UnitPrice: 500},
	}}
	if got := order.ItemSubtotal(); got != 2900 {
		t.Errorf("ItemSubtotal = %d, want 2900", got)
	}
	if got := (Order{}).ItemSubtotal(); got != 0 {
		t.Errorf("empty ItemSubtotal = %d, want 0", got)
	}
}

func TestShippingFeeFor(t *testing.T) {
	tests := []struct {
		method   ShippingMethod
		subtotal int64
		want     int64
	}{
		{ShippingGround, 0, 1_000},
		{ShippingGround, 5_099, 1_000},
		{ShippingGround, 5_100, 2_000},
		{ShippingGround, 25_099, 2_000},
		{ShippingGround, 25_100, 3_000},
		{ShippingGround, 49_999, 3_000},
		{ShippingGround, 50_000, 0},
		{ShippingOvernight, 5_099, 1_500},
		{ShippingOvernight, 5_100, 2_500},
		{ShippingOvernight, 25_100, 3_500},
		{ShippingOvernight, 60_000, 4_900},
		{ShippingOvernight, 80_000, 3_000},
		{"pigeon", 1_000, 0},
	}
	for _, tc := range tests {
		if got := ShippingFeeFor(tc.method, tc.subtotal); got != tc.want {
			t.Errorf("ShippingFeeFor(%s, %d) = %d, want %d", tc.method, tc.subtotal, got, tc.want)
		}
	}
}
