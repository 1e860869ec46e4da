package pizzasdk

import "math"

// round2 rounds to cents.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToppingsTotal sums the topping prices of a cart line. Each price already
// covers its own quantity.
func (it CartItem) ToppingsTotal() float64 {
	var sum float64
	for _, t := range it.Toppings {
		sum += t.Price
	}
	return round2(sum)
}

// LineTotal is the unit pizza price times quantity plus the toppings.
func (it CartItem) LineTotal() float64 {
	return round2(it.ItemPrice*float64(it.Quantity) + it.ToppingsTotal())
}

// Subtotal sums the line totals as computed locally. It should agree with
// TotalPrice as reported by the server.
func (c Cart) Subtotal() float64 {
	var sum float64
	for _, it := range c.Items {
		sum += it.LineTotal()
	}
	return round2(sum)
}

// HasDiscount reports whether a coupon currently lowers the price.
func (c Cart) HasDiscount() bool {
	return c.DiscountedPrice > 0 && c.DiscountedPrice < c.TotalPrice
}

// Payable is what checkout will charge.
func (c Cart) Payable() float64 {
	if c.HasDiscount() {
		return round2(c.DiscountedPrice)
	}
	return round2(c.TotalPrice)
}

// Savings is the amount a coupon takes off.
func (c Cart) Savings() float64 {
	return round2(c.TotalPrice - c.Payable())
}

// ItemCount is the number of pizzas in the cart.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsEmpty reports whether there is nothing to check out.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// LineTotal is the order line price including toppings. ItemPrice on an
// order line already covers the quantity.
func (it OrderItem) LineTotal() float64 {
	toppings := it.TotalToppingPrice
	if toppings == 0 {
		for _, t := range it.Toppings {
			toppings += t.Price
		}
	}
	return round2(it.ItemPrice + toppings)
}
