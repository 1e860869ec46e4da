package pizzasdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Cart operations - the signed-in customer's basket and checkout

// GetCart returns the signed-in user's cart. A user with no cart gets an
// empty one rather than an error.
func (g *Gateway) GetCart(ctx context.Context) (*Cart, error) {
	cart, err := callData[*Cart](ctx, g, http.MethodGet, "/api/cart", nil)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		cart = &Cart{}
	}
	return cart, nil
}

// AddToCart adds a pizza with toppings. Adding a pizza already in the cart
// increases its quantity.
func (g *Gateway) AddToCart(ctx context.Context, req AddToCartRequest) (*CartItemRecord, error) {
	if req.Toppings == nil {
		req.Toppings = []ToppingSelection{}
	}

	item, err := callData[CartItemRecord](ctx, g, http.MethodPost, "/api/cart/items", req)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateCartItemQuantity sets the quantity of a cart line.
func (g *Gateway) UpdateCartItemQuantity(ctx context.Context, cartItemID, quantity int) (*CartItemRecord, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	q := url.Values{"updated_cart_Quantity": {strconv.Itoa(quantity)}}
	path := fmt.Sprintf("/api/cart/items/%d?%s", cartItemID, q.Encode())

	item, err := callData[CartItemRecord](ctx, g, http.MethodPut, path, nil)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveCartItem deletes a cart line. Removing the last line deletes the cart.
func (g *Gateway) RemoveCartItem(ctx context.Context, cartItemID int) error {
	return g.callNoData(ctx, http.MethodDelete, fmt.Sprintf("/api/cart/items/%d", cartItemID))
}

// ApplyCoupon applies a coupon code to the cart. Each coupon can be redeemed
// once per user.
func (g *Gateway) ApplyCoupon(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("coupon code is required")
	}

	q := url.Values{"cart_coupon": {code}}
	return g.callNoData(ctx, http.MethodPost, "/api/cart/coupons?"+q.Encode())
}

// RemoveCoupon takes the applied coupon off the cart and makes it available again.
func (g *Gateway) RemoveCoupon(ctx context.Context) error {
	return g.callNoData(ctx, http.MethodPost, "/api/cart/coupons/remove")
}

// Checkout turns the cart into an order, charging the discounted price when a
// coupon is applied.
func (g *Gateway) Checkout(ctx context.Context) (*PlacedOrder, error) {
	order, err := callData[PlacedOrder](ctx, g, http.MethodPost, "/api/cart/checkout", nil)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListAvailableCoupons returns the coupons the signed-in user can still redeem.
func (g *Gateway) ListAvailableCoupons(ctx context.Context) ([]AvailableCoupon, error) {
	return callData[[]AvailableCoupon](ctx, g, http.MethodGet, "/api/coupons", nil)
}
