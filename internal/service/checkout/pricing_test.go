package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name  string
		lines []pricedLine
		want  Quote
	}{
		{
			name: "single line",
			lines: []pricedLine{
				{PricePaise: 120000, Quantity: 1, WeightKg: 0.5},
			},
			want: Quote{
				SubtotalPaise: 120000,
				ShippingPaise: 5000,
				TotalWeightKg: 0.5,
				TotalPaise:    125000,
			},
		},
		{
			name: "quantities multiply price and weight",
			lines: []pricedLine{
				{PricePaise: 45000, Quantity: 3, WeightKg: 0.25},
				{PricePaise: 80000, Quantity: 2, WeightKg: 1.2},
			},
			want: Quote{
				SubtotalPaise: 295000,
				ShippingPaise: 5000,
				TotalWeightKg: 3.15,
				TotalPaise:    300000,
			},
		},
		{
			name:  "empty order has no shipping",
			lines: nil,
			want:  Quote{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quote(tt.lines)
			assert.Equal(t, tt.want.SubtotalPaise, got.SubtotalPaise)
			assert.Equal(t, tt.want.ShippingPaise, got.ShippingPaise)
			assert.Equal(t, tt.want.TotalPaise, got.TotalPaise)
			assert.InDelta(t, tt.want.TotalWeightKg, got.TotalWeightKg, 1e-9)
		})
	}
}
