package storefronttest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/httpx"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
)

// ============================================================================
// Cart
// ============================================================================

func (s *Server) cartTotalLocked(c *cart) float64 {
	var total float64
	for _, line := range c.Lines {
		total += s.pizzas[line.PizzaID].Price * float64(line.Quantity)
		for tid, q := range line.Toppings {
			total += s.toppings[tid].Price * float64(q)
		}
	}
	return round2(total)
}

func (s *Server) cartViewLocked(c *cart) pizzasdk.Cart {
	total := s.cartTotalLocked(c)
	view := pizzasdk.Cart{
		CartID:     c.ID,
		UserID:     c.UserID,
		TotalPrice: total,
		Items:      make([]pizzasdk.CartItem, 0, len(c.Lines)),
	}
	if c.CouponID != 0 {
		view.DiscountedPrice = round2(max(0, total-c.Discount))
	}

	for _, line := range c.Lines {
		p := s.pizzas[line.PizzaID]
		item := pizzasdk.CartItem{
			CartItemID: line.ID,
			PizzaID:    line.PizzaID,
			PizzaName:  p.Name,
			Quantity:   line.Quantity,
			ItemPrice:  p.Price,
			Toppings:   make([]pizzasdk.CartTopping, 0, len(line.order)),
		}
		for _, tid := range line.order {
			t := s.toppings[tid]
			q := line.Toppings[tid]
			item.Toppings = append(item.Toppings, pizzasdk.CartTopping{
				ToppingID:   tid,
				ToppingName: t.Name,
				Quantity:    q,
				Price:       round2(t.Price * float64(q)),
			})
		}
		view.Items = append(view.Items, item)
	}
	return view
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[u.ID]
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "No active cart found for this user."})
		return
	}
	httpx.WriteEnvelope(w, http.StatusOK, "Cart retrieved successfully", s.cartViewLocked(c))
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request, u *user) {
	var req pizzasdk.AddToCartRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pizzas[req.PizzaID]; !ok || req.Quantity <= 0 {
		httpx.WriteDetail(w, http.StatusBadRequest, "Error adding item to cart: unknown pizza or bad quantity")
		return
	}
	for _, t := range req.Toppings {
		if _, ok := s.toppings[t.ToppingID]; !ok {
			httpx.WriteDetail(w, http.StatusBadRequest, "Error adding item to cart: unknown topping")
			return
		}
	}

	c, ok := s.carts[u.ID]
	if !ok {
		c = &cart{ID: s.newIDLocked(), UserID: u.ID}
		s.carts[u.ID] = c
	}

	var line *cartLine
	for _, l := range c.Lines {
		if l.PizzaID == req.PizzaID {
			line = l
			line.Quantity += req.Quantity
			break
		}
	}
	if line == nil {
		line = &cartLine{ID: s.newIDLocked(), PizzaID: req.PizzaID, Quantity: req.Quantity, Toppings: map[int]int{}}
		c.Lines = append(c.Lines, line)
	}
	for _, t := range req.Toppings {
		if _, seen := line.Toppings[t.ToppingID]; !seen {
			line.order = append(line.order, t.ToppingID)
		}
		line.Toppings[t.ToppingID] += t.Quantity
	}

	httpx.WriteEnvelope(w, http.StatusOK, "Item added to cart successfully", pizzasdk.CartItemRecord{
		ID: line.ID, CartID: c.ID, PizzaID: line.PizzaID, Quantity: line.Quantity,
	})
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request, u *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	qty, err := strconv.Atoi(r.URL.Query().Get("updated_cart_Quantity"))
	if err != nil {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "updated_cart_Quantity is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, c := s.findLineLocked(u.ID, id)
	if line == nil {
		httpx.WriteDetail(w, http.StatusBadRequest, "Cart item not found.")
		return
	}
	line.Quantity = qty
	httpx.WriteEnvelope(w, http.StatusOK, "Cart item updated successfully", pizzasdk.CartItemRecord{
		ID: line.ID, CartID: c.ID, PizzaID: line.PizzaID, Quantity: line.Quantity,
	})
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request, u *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, c := s.findLineLocked(u.ID, id)
	if line == nil {
		httpx.WriteDetail(w, http.StatusBadRequest, "Cart item not found.")
		return
	}
	for i, l := range c.Lines {
		if l == line {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			break
		}
	}
	if len(c.Lines) == 0 {
		delete(s.carts, u.ID)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Cart item removed and cart deleted as it was the last item."})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Cart item removed successfully."})
}

func (s *Server) findLineLocked(userID, lineID int) (*cartLine, *cart) {
	c, ok := s.carts[userID]
	if !ok {
		return nil, nil
	}
	for _, l := range c.Lines {
		if l.ID == lineID {
			return l, c
		}
	}
	return nil, nil
}

func (s *Server) handleApplyCoupon(w http.ResponseWriter, r *http.Request, u *user) {
	code := r.URL.Query().Get("cart_coupon")

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[u.ID]
	if !ok {
		httpx.WriteDetail(w, http.StatusBadRequest, "Cart not found.")
		return
	}

	var coupon *pizzasdk.Coupon
	for _, cp := range s.coupons {
		if cp.Code == code {
			coupon = &cp
			break
		}
	}
	if coupon == nil || coupon.ExpirationDate.Before(time.Now().UTC().Truncate(24*time.Hour)) {
		httpx.WriteDetail(w, http.StatusBadRequest, "Coupon not found or expired.")
		return
	}
	key := [2]int{u.ID, coupon.ID}
	if s.redeemed[key] {
		httpx.WriteDetail(w, http.StatusBadRequest, "Coupon already used by this user.")
		return
	}

	s.redeemed[key] = true
	c.CouponID, c.Discount = coupon.ID, coupon.Discount

	view := s.cartViewLocked(c)
	httpx.WriteEnvelope(w, http.StatusOK, "Coupon applied successfully", map[string]any{
		"id":               c.ID,
		"user_id":          c.UserID,
		"total_price":      view.TotalPrice,
		"discounted_price": view.DiscountedPrice,
	})
}

func (s *Server) handleRemoveCoupon(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[u.ID]
	if !ok {
		httpx.WriteDetail(w, http.StatusBadRequest, "Cart not found.")
		return
	}
	if c.CouponID == 0 {
		httpx.WriteDetail(w, http.StatusBadRequest, "No coupon applied to this cart.")
		return
	}

	delete(s.redeemed, [2]int{u.ID, c.CouponID})
	c.CouponID, c.Discount = 0, 0
	httpx.WriteEnvelope(w, http.StatusOK, "Coupon removed successfully", map[string]any{
		"cart_id":            c.ID,
		"recalculated_total": s.cartTotalLocked(c),
	})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[u.ID]
	if !ok || len(c.Lines) == 0 {
		httpx.WriteDetail(w, http.StatusBadRequest, "Cannot checkout an empty cart.")
		return
	}

	view := s.cartViewLocked(c)
	o := &order{
		ID:        s.newIDLocked(),
		UserID:    u.ID,
		Total:     view.Payable(),
		CreatedAt: time.Now().UTC(),
	}
	for _, line := range c.Lines {
		ol := orderLine{ID: s.newIDLocked(), PizzaID: line.PizzaID, Quantity: line.Quantity}
		for _, tid := range line.order {
			ol.Toppings = append(ol.Toppings, pizzasdk.ToppingSelection{ToppingID: tid, Quantity: line.Toppings[tid]})
		}
		o.Lines = append(o.Lines, ol)
	}
	s.orders[o.ID] = o
	delete(s.carts, u.ID)

	httpx.WriteEnvelope(w, http.StatusOK, "Order placed successfully", map[string]any{
		"id":          o.ID,
		"user_id":     o.UserID,
		"status":      statusJSON(o.Status),
		"total_price": o.Total,
		"created_at":  o.CreatedAt,
	})
}

// ============================================================================
// Orders
// ============================================================================

func (s *Server) orderViewLocked(o *order) pizzasdk.Order {
	view := pizzasdk.Order{
		OrderID:    o.ID,
		TotalPrice: o.Total,
		CreatedAt:  pizzasdk.Timestamp{Time: o.CreatedAt},
		Status:     pizzasdk.OrderStatus(o.Status),
		Items:      make([]pizzasdk.OrderItem, 0, len(o.Lines)),
	}
	for _, line := range o.Lines {
		p := s.pizzas[line.PizzaID]
		item := pizzasdk.OrderItem{
			ID:        line.ID,
			PizzaID:   line.PizzaID,
			PizzaName: p.Name,
			Quantity:  line.Quantity,
			ItemPrice: round2(p.Price * float64(line.Quantity)),
			Toppings:  make([]pizzasdk.OrderTopping, 0, len(line.Toppings)),
		}
		for _, ts := range line.Toppings {
			t := s.toppings[ts.ToppingID]
			price := round2(t.Price * float64(ts.Quantity))
			item.TotalToppingPrice += price
			item.Toppings = append(item.Toppings, pizzasdk.OrderTopping{
				OrderItemID: line.ID,
				ToppingID:   ts.ToppingID,
				ToppingName: t.Name,
				Quantity:    ts.Quantity,
				Price:       price,
			})
		}
		item.TotalToppingPrice = round2(item.TotalToppingPrice)
		view.Items = append(view.Items, item)
	}
	return view
}

// orderJSON renders an order with a null status when none is set.
func orderJSON(v pizzasdk.Order, raw string) map[string]any {
	return map[string]any{
		"order_id":    v.OrderID,
		"total_price": v.TotalPrice,
		"created_at":  v.CreatedAt,
		"status":      statusJSON(raw),
		"items":       v.Items,
	}
}

func (s *Server) handleMyOrders(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []map[string]any
	for _, o := range sortedByID(s.orders, func(o *order) int { return o.ID }) {
		if o.UserID == u.ID {
			out = append(out, orderJSON(s.orderViewLocked(o), o.Status))
		}
	}

	inner := map[string]any{"message": "No orders found for this user."}
	if len(out) > 0 {
		inner = map[string]any{"message": "Orders retrieved successfully", "data": out}
	}
	httpx.WriteEnvelope(w, http.StatusOK, "User orders retrieved successfully", inner)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Order not found.")
		return
	}
	httpx.WriteEnvelope(w, http.StatusOK, "Order retrieved successfully", orderJSON(s.orderViewLocked(o), o.Status))
}

func (s *Server) handleAllOrders(w http.ResponseWriter, r *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []map[string]any{}
	for _, o := range sortedByID(s.orders, func(o *order) int { return o.ID }) {
		items := make([]map[string]int, 0, len(o.Lines))
		toppings := []map[string]int{}
		for _, line := range o.Lines {
			items = append(items, map[string]int{"id": line.ID, "pizza_id": line.PizzaID, "quantity": line.Quantity})
			for _, t := range line.Toppings {
				toppings = append(toppings, map[string]int{"order_item_id": line.ID, "topping_id": t.ToppingID, "quantity": t.Quantity})
			}
		}
		out = append(out, map[string]any{
			"order": map[string]any{
				"id":          o.ID,
				"user_id":     o.UserID,
				"total_price": o.Total,
				"created_at":  o.CreatedAt,
				"status":      statusJSON(o.Status),
			},
			"order_items":    items,
			"order_toppings": toppings,
		})
	}
	httpx.WriteEnvelope(w, http.StatusOK, "Orders retrieved successfully", out)
}

func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	status := pizzasdk.OrderStatus(r.URL.Query().Get("new_status"))
	if !status.Settable() {
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid order status.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusBadRequest, "Order not found.")
		return
	}
	o.Status = string(status)
	httpx.WriteEnvelope(w, http.StatusOK, "Order status updated successfully",
		pizzasdk.StatusChange{OrderID: o.ID, Status: status})
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		httpx.WriteDetail(w, http.StatusInternalServerError, "Order not found.")
		return
	}
	delete(s.orders, id)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Order deleted successfully."})
}
