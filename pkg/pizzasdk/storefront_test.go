package pizzasdk_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/stretchr/testify/require"
)

func TestGateway_CartAndCheckout(t *testing.T) {
	srv := newStorefront(t)
	margherita := srv.SeedPizza("Margherita", "Classic", 10)
	diavola := srv.SeedPizza("Diavola", "Spicy", 12.5)
	olives := srv.SeedTopping("Olives", 1.5)
	basil := srv.SeedTopping("Basil", 0.75)
	srv.SeedCoupon("SAVE5", 5, time.Now().AddDate(0, 1, 0))

	gw, _ := signIn(t, srv)
	ctx := context.Background()

	cart, err := gw.GetCart(ctx)
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())

	_, err = gw.AddToCart(ctx, pizzasdk.AddToCartRequest{
		PizzaID:  margherita,
		Quantity: 2,
		Toppings: []pizzasdk.ToppingSelection{{ToppingID: olives, Quantity: 2}, {ToppingID: basil, Quantity: 1}},
	})
	require.NoError(t, err)

	line, err := gw.AddToCart(ctx, pizzasdk.AddToCartRequest{PizzaID: diavola, Quantity: 1})
	require.NoError(t, err)

	cart, err = gw.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	require.Equal(t, 3, cart.ItemCount())

	// 2*10 + 2*1.5 + 0.75 = 23.75; 12.5
	require.InDelta(t, 23.75, cart.Items[0].LineTotal(), 0.001)
	require.InDelta(t, 36.25, cart.Subtotal(), 0.001)
	require.InDelta(t, cart.TotalPrice, cart.Subtotal(), 0.001)
	require.False(t, cart.HasDiscount())

	updated, err := gw.UpdateCartItemQuantity(ctx, line.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Quantity)

	coupons, err := gw.ListAvailableCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	require.Equal(t, "SAVE5", coupons[0].Code)

	require.NoError(t, gw.ApplyCoupon(ctx, "SAVE5"))

	cart, err = gw.GetCart(ctx)
	require.NoError(t, err)
	require.True(t, cart.HasDiscount())
	require.InDelta(t, 48.75, cart.TotalPrice, 0.001)
	require.InDelta(t, 43.75, cart.Payable(), 0.001)
	require.InDelta(t, 5, cart.Savings(), 0.001)

	err = gw.ApplyCoupon(ctx, "SAVE5")
	require.True(t, pizzasdk.IsStatus(err, http.StatusBadRequest))

	coupons, err = gw.ListAvailableCoupons(ctx)
	require.NoError(t, err)
	require.Empty(t, coupons)

	placed, err := gw.Checkout(ctx)
	require.NoError(t, err)
	require.InDelta(t, 43.75, placed.TotalPrice, 0.001)
	require.Equal(t, pizzasdk.StatusPending, placed.Status)

	order, err := gw.GetOrder(ctx, placed.ID)
	require.NoError(t, err)
	require.Equal(t, pizzasdk.StatusPending, order.Status)
	require.Len(t, order.Items, 2)
	require.InDelta(t, 23.75, order.Items[0].LineTotal(), 0.001)

	orders, err := gw.ListMyOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, placed.ID, orders[0].OrderID)

	cart, err = gw.GetCart(ctx)
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())

	_, err = gw.Checkout(ctx)
	require.True(t, pizzasdk.IsStatus(err, http.StatusBadRequest))
}

func TestGateway_RemoveCartItemAndCoupon(t *testing.T) {
	srv := newStorefront(t)
	pizza := srv.SeedPizza("Funghi", "Mushrooms", 11)
	srv.SeedCoupon("TAKE2", 2, time.Now().AddDate(0, 0, 7))

	gw, _ := signIn(t, srv)
	ctx := context.Background()

	line, err := gw.AddToCart(ctx, pizzasdk.AddToCartRequest{PizzaID: pizza, Quantity: 1})
	require.NoError(t, err)

	err = gw.RemoveCoupon(ctx)
	require.True(t, pizzasdk.IsStatus(err, http.StatusBadRequest))

	require.NoError(t, gw.ApplyCoupon(ctx, "TAKE2"))
	require.NoError(t, gw.RemoveCoupon(ctx))

	coupons, err := gw.ListAvailableCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, coupons, 1, "removing a coupon makes it available again")

	require.NoError(t, gw.RemoveCartItem(ctx, line.ID))

	cart, err := gw.GetCart(ctx)
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())

	_, err = gw.UpdateCartItemQuantity(ctx, line.ID, 0)
	require.ErrorContains(t, err, "quantity must be positive")
}

func TestGateway_ListMyOrdersEmpty(t *testing.T) {
	srv := newStorefront(t)
	gw, _ := signIn(t, srv)

	orders, err := gw.ListMyOrders(context.Background())
	require.NoError(t, err)
	require.NotNil(t, orders)
	require.Empty(t, orders)
}

func TestGateway_AdminCatalog(t *testing.T) {
	srv := newStorefront(t)
	store := pizzasdk.NewMemoryStore(pizzasdk.Credentials{})
	gw, _, err := newClient(srv.URL).Login(context.Background(), store, adminEmail, adminPassword)
	require.NoError(t, err)
	ctx := context.Background()

	pizza, err := gw.CreatePizza(ctx, pizzasdk.PizzaInput{Name: "Quattro Formaggi", Description: "Four cheeses", Price: 13},
		"quattro.jpg", strings.NewReader("not really a jpeg"))
	require.NoError(t, err)
	require.Equal(t, "/static/images/quattro_formaggi.jpg", pizza.Image)

	_, err = gw.CreatePizza(ctx, pizzasdk.PizzaInput{Name: "Quattro Formaggi", Price: 13}, "q.jpg", strings.NewReader("x"))
	require.True(t, pizzasdk.IsStatus(err, http.StatusBadRequest))

	pizza, err = gw.UpdatePizza(ctx, pizza.ID, pizzasdk.PizzaInput{Name: "Quattro Formaggi", Description: "Four cheeses", Price: 14})
	require.NoError(t, err)
	require.InDelta(t, 14, pizza.Price, 0.001)

	topping, err := gw.CreateTopping(ctx, pizzasdk.ToppingInput{Name: "Anchovies", Price: 2})
	require.NoError(t, err)
	topping, err = gw.UpdateTopping(ctx, topping.ID, pizzasdk.ToppingInput{Name: "Anchovies", Price: 2.5})
	require.NoError(t, err)
	require.InDelta(t, 2.5, topping.Price, 0.001)

	coupon, err := gw.CreateCoupon(ctx, pizzasdk.CouponInput{Code: "WINTER", Discount: 3, ExpirationDate: "2099-12-31", UsageLimit: 100})
	require.NoError(t, err)
	require.Equal(t, 2099, coupon.ExpirationDate.Year())

	_, err = gw.CreateCoupon(ctx, pizzasdk.CouponInput{Code: "BAD", Discount: 3, ExpirationDate: "31/12/2099"})
	require.ErrorContains(t, err, "invalid request")

	coupon, err = gw.UpdateCoupon(ctx, coupon.ID, pizzasdk.CouponInput{Code: "WINTER", Discount: 4, ExpirationDate: "2099-12-31", UsageLimit: 50})
	require.NoError(t, err)
	require.InDelta(t, 4, coupon.Discount, 0.001)

	all, err := gw.ListAllCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, gw.DeleteCoupon(ctx, coupon.ID))
	require.NoError(t, gw.DeleteTopping(ctx, topping.ID))
	require.NoError(t, gw.DeletePizza(ctx, pizza.ID))

	pizzas, err := gw.Client().ListPizzas(ctx)
	require.NoError(t, err)
	require.Empty(t, pizzas)
}

func TestGateway_AdminUsersAndOrders(t *testing.T) {
	srv := newStorefront(t)
	pizza := srv.SeedPizza("Marinara", "No cheese", 8)

	customer, _ := signIn(t, srv)
	ctx := context.Background()
	_, err := customer.AddToCart(ctx, pizzasdk.AddToCartRequest{PizzaID: pizza, Quantity: 1})
	require.NoError(t, err)
	placed, err := customer.Checkout(ctx)
	require.NoError(t, err)

	admin, _, err := newClient(srv.URL).Login(ctx, pizzasdk.NewMemoryStore(pizzasdk.Credentials{}), adminEmail, adminPassword)
	require.NoError(t, err)

	users, err := admin.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "Ada", users[0].DisplayName())

	u, err := admin.GetUser(ctx, users[0].ID)
	require.NoError(t, err)
	require.Equal(t, customerEmail, u.Email)

	summaries, err := admin.ListUserOrders(ctx, users[0].ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, pizzasdk.StatusPending, summaries[0].Status)

	created, err := admin.CreateAdmin(ctx, pizzasdk.RegisterRequest{Name: "Ops", Email: "ops@example.com", Password: "sekrit!"})
	require.NoError(t, err)
	require.Equal(t, pizzasdk.RoleAdmin, created.Role)

	all, err := admin.ListAllOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, placed.ID, all[0].Order.ID)
	require.Len(t, all[0].OrderItems, 1)

	change, err := admin.UpdateOrderStatus(ctx, placed.ID, pizzasdk.StatusBaking)
	require.NoError(t, err)
	require.Equal(t, pizzasdk.StatusBaking, change.Status)

	_, err = admin.UpdateOrderStatus(ctx, placed.ID, "Burnt")
	require.ErrorContains(t, err, "cannot set order status")

	_, err = admin.UpdateOrderStatus(ctx, placed.ID, pizzasdk.StatusPending)
	require.Error(t, err)

	order, err := customer.GetOrder(ctx, placed.ID)
	require.NoError(t, err)
	require.Equal(t, pizzasdk.StatusBaking, order.Status)

	require.NoError(t, admin.DeleteOrder(ctx, placed.ID))
	_, err = customer.GetOrder(ctx, placed.ID)
	require.True(t, pizzasdk.IsStatus(err, http.StatusNotFound))
}
