package checkout

// FlatShippingPaise is the delivery charge applied to every product order
// regardless of weight or destination.
const FlatShippingPaise int64 = 5000

// Quote is the priced summary of an order's line items.
type Quote struct {
	SubtotalPaise int64
	ShippingPaise int64
	TotalWeightKg float64
	TotalPaise    int64
}

type pricedLine struct {
	PricePaise int64
	Quantity   int
	WeightKg   float64
}

// quote totals the lines and applies flat shipping. An empty order ships
// nothing and costs nothing.
func quote(lines []pricedLine) Quote {
	var q Quote
	if len(lines) == 0 {
		return q
	}

	for _, l := range lines {
		q.SubtotalPaise += l.PricePaise * int64(l.Quantity)
		q.TotalWeightKg += l.WeightKg * float64(l.Quantity)
	}

	q.ShippingPaise = FlatShippingPaise
	q.TotalPaise = q.SubtotalPaise + q.ShippingPaise

	return q
}
