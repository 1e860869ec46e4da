package pizzasdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// Admin operations - require the admin role
// Every method checks the stored role first when Client.CheckRoles is set.

// ============================================================================
// Users
// ============================================================================

// ListUsers returns every account.
func (g *Gateway) ListUsers(ctx context.Context) ([]User, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return callData[[]User](ctx, g, http.MethodGet, "/api/users", nil)
}

// GetUser returns one account.
func (g *Gateway) GetUser(ctx context.Context, userID int) (*User, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}

	user, err := callData[User](ctx, g, http.MethodGet, fmt.Sprintf("/api/users/%d", userID), nil)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUserOrders returns the order summaries of one account.
func (g *Gateway) ListUserOrders(ctx context.Context, userID int) ([]OrderSummary, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return callData[[]OrderSummary](ctx, g, http.MethodGet, fmt.Sprintf("/api/users/%d/orders", userID), nil)
}

// CreateAdmin registers a new account with the admin role.
func (g *Gateway) CreateAdmin(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}

	user, err := callData[User](ctx, g, http.MethodPost, "/api/create_admin", req)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ============================================================================
// Pizzas
// ============================================================================

// CreatePizza adds a menu item with its image. The upload is sent as
// multipart/form-data.
func (g *Gateway) CreatePizza(ctx context.Context, in PizzaInput, imageName string, image io.Reader) (*Pizza, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if image == nil || imageName == "" {
		return nil, fmt.Errorf("pizza image is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"name":        in.Name,
		"description": in.Description,
		"price":       strconv.FormatFloat(in.Price, 'f', 2, 64),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to encode form: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("file", imageName)
	if err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}
	if _, err := io.Copy(fw, image); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	resp, err := g.Call(ctx, http.MethodPost, "/api/pizzas", buf.Bytes(),
		map[string]string{"Content-Type": mw.FormDataContentType()})
	if err != nil {
		return nil, err
	}

	pizza, err := decodeData[Pizza](resp)
	if err != nil {
		return nil, err
	}
	return &pizza, nil
}

// UpdatePizza replaces a menu item's name, description and price.
func (g *Gateway) UpdatePizza(ctx context.Context, pizzaID int, in PizzaInput) (*Pizza, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}

	pizza, err := callData[Pizza](ctx, g, http.MethodPut, fmt.Sprintf("/api/pizzas/%d", pizzaID), in)
	if err != nil {
		return nil, err
	}
	return &pizza, nil
}

// DeletePizza removes a menu item.
func (g *Gateway) DeletePizza(ctx context.Context, pizzaID int) error {
	if err := g.requireAdmin(ctx); err != nil {
		return err
	}
	return g.callNoData(ctx, http.MethodDelete, fmt.Sprintf("/api/pizzas/%d", pizzaID))
}

// ============================================================================
// Toppings
// ============================================================================

// CreateTopping adds a topping.
func (g *Gateway) CreateTopping(ctx context.Context, in ToppingInput) (*Topping, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}

	topping, err := callData[Topping](ctx, g, http.MethodPost, "/api/toppings", in)
	if err != nil {
		return nil, err
	}
	return &topping, nil
}

// UpdateTopping replaces a topping's name and price.
func (g *Gateway) UpdateTopping(ctx context.Context, toppingID int, in ToppingInput) (*Topping, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}

	topping, err := callData[Topping](ctx, g, http.MethodPut, fmt.Sprintf("/api/toppings/%d", toppingID), in)
	if err != nil {
		return nil, err
	}
	return &topping, nil
}

// DeleteTopping removes a topping.
func (g *Gateway) DeleteTopping(ctx context.Context, toppingID int) error {
	if err := g.requireAdmin(ctx); err != nil {
		return err
	}
	return g.callNoData(ctx, http.MethodDelete, fmt.Sprintf("/api/toppings/%d", toppingID))
}

// ============================================================================
// Coupons
// ============================================================================

// ListAllCoupons returns every coupon, redeemed or not.
func (g *Gateway) ListAllCoupons(ctx context.Context) ([]Coupon, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return callData[[]Coupon](ctx, g, http.MethodGet, "/api/coupons/all", nil)
}

// CreateCoupon adds a coupon and makes it available to every account.
func (g *Gateway) CreateCoupon(ctx context.Context, in CouponInput) (*Coupon, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}

	coupon, err := callData[Coupon](ctx, g, http.MethodPost, "/api/coupons", in)
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// UpdateCoupon replaces a coupon's fields.
func (g *Gateway) UpdateCoupon(ctx context.Context, couponID int, in CouponInput) (*Coupon, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}

	coupon, err := callData[Coupon](ctx, g, http.MethodPut, fmt.Sprintf("/api/coupons/%d", couponID), in)
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// DeleteCoupon removes a coupon and every account's claim on it.
func (g *Gateway) DeleteCoupon(ctx context.Context, couponID int) error {
	if err := g.requireAdmin(ctx); err != nil {
		return err
	}
	return g.callNoData(ctx, http.MethodDelete, fmt.Sprintf("/api/coupons/%d", couponID))
}

// ============================================================================
// Orders
// ============================================================================

// ListAllOrders returns every order with its raw lines.
func (g *Gateway) ListAllOrders(ctx context.Context) ([]AdminOrder, error) {
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return callData[[]AdminOrder](ctx, g, http.MethodGet, "/api/orders/all", nil)
}

// UpdateOrderStatus moves an order to status. Pending and unknown statuses
// are rejected before any request is sent.
func (g *Gateway) UpdateOrderStatus(ctx context.Context, orderID int, status OrderStatus) (*StatusChange, error) {
	if !status.Settable() {
		return nil, fmt.Errorf("cannot set order status to %q", status)
	}
	if err := g.requireAdmin(ctx); err != nil {
		return nil, err
	}

	q := url.Values{"new_status": {string(status)}}
	path := fmt.Sprintf("/api/orders/%d/status?%s", orderID, q.Encode())

	change, err := callData[StatusChange](ctx, g, http.MethodPut, path, nil)
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// DeleteOrder removes an order.
func (g *Gateway) DeleteOrder(ctx context.Context, orderID int) error {
	if err := g.requireAdmin(ctx); err != nil {
		return err
	}
	return g.callNoData(ctx, http.MethodDelete, fmt.Sprintf("/api/orders/%d", orderID))
}
