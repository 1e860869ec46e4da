package pizzasdk

import (
	"context"
	"fmt"
	"net/http"
)

// ListMyOrders returns the signed-in user's orders. The storefront nests this
// listing in a second envelope, and omits the inner data when there are none.
func (g *Gateway) ListMyOrders(ctx context.Context) ([]Order, error) {
	inner, err := callData[envelope[[]Order]](ctx, g, http.MethodGet, "/api/orders/my-orders", nil)
	if err != nil {
		return nil, err
	}
	if inner.Data == nil {
		return []Order{}, nil
	}
	return inner.Data, nil
}

// GetOrder returns one order with its lines and current status.
func (g *Gateway) GetOrder(ctx context.Context, orderID int) (*Order, error) {
	order, err := callData[Order](ctx, g, http.MethodGet, fmt.Sprintf("/api/orders/%d", orderID), nil)
	if err != nil {
		return nil, err
	}
	return &order, nil
}
