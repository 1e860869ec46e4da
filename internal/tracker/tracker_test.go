package tracker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/pizzeria/internal/storefronttest"
	"github.com/aussiebroadwan/pizzeria/internal/tracker"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/aussiebroadwan/pizzeria/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const pollEvery = 5 * time.Millisecond

func setup(t *testing.T) (*storefronttest.Server, *pizzasdk.Gateway) {
	t.Helper()

	srv := storefronttest.New(t)
	srv.SeedUser("Ada", "ada@example.com", "hunter22", pizzasdk.RoleUser)
	srv.SeedPizza("Margherita", "Classic", 10)

	client := pizzasdk.NewClient(srv.URL, pizzasdk.WithLogger(slogx.Discard()))
	gw, _, err := client.Login(context.Background(), pizzasdk.NewMemoryStore(pizzasdk.Credentials{}), "ada@example.com", "hunter22")
	require.NoError(t, err)
	return srv, gw
}

func placeOrder(t *testing.T, srv *storefronttest.Server, gw *pizzasdk.Gateway) int {
	t.Helper()

	pizzas, err := gw.Client().ListPizzas(context.Background())
	require.NoError(t, err)
	_, err = gw.AddToCart(context.Background(), pizzasdk.AddToCartRequest{PizzaID: pizzas[0].ID, Quantity: 1})
	require.NoError(t, err)
	placed, err := gw.Checkout(context.Background())
	require.NoError(t, err)
	return placed.ID
}

func next(t *testing.T, updates <-chan tracker.Update) tracker.Update {
	t.Helper()
	select {
	case u, ok := <-updates:
		require.True(t, ok, "updates closed early")
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("no update")
		return tracker.Update{}
	}
}

func requireClosed(t *testing.T, updates <-chan tracker.Update) {
	t.Helper()
	select {
	case _, ok := <-updates:
		require.False(t, ok, "expected updates to be closed")
	case <-time.After(5 * time.Second):
		t.Fatal("updates not closed")
	}
}

func TestWatch_FollowsOrderToCompletion(t *testing.T) {
	srv, gw := setup(t)
	orderID := placeOrder(t, srv, gw)

	tr := tracker.New(gw, pollEvery, slogx.Discard())
	updates := tr.Watch(context.Background(), orderID)

	u := next(t, updates)
	require.NoError(t, u.Err)
	require.Equal(t, pizzasdk.StatusPending, u.Order.Status)
	require.Empty(t, u.Previous)

	want := []pizzasdk.OrderStatus{
		pizzasdk.StatusReceived,
		pizzasdk.StatusPreparing,
		pizzasdk.StatusBaking,
		pizzasdk.StatusReadyForPickup,
		pizzasdk.StatusCompleted,
	}
	prev := pizzasdk.StatusPending
	for _, status := range want {
		require.Equal(t, status, srv.AdvanceOrder(orderID))

		u := next(t, updates)
		require.NoError(t, u.Err)
		require.Equal(t, status, u.Order.Status)
		require.Equal(t, prev, u.Previous)
		prev = status
	}

	requireClosed(t, updates)
}

func TestWatch_StopsOnRenewalFailure(t *testing.T) {
	srv, gw := setup(t)
	orderID := placeOrder(t, srv, gw)

	srv.ExpireAccess()
	srv.RevokeRefresh()

	updates := tracker.New(gw, pollEvery, nil).Watch(context.Background(), orderID)

	u := next(t, updates)
	require.ErrorIs(t, u.Err, pizzasdk.ErrRenewalFailed)
	requireClosed(t, updates)
}

func TestWatch_StopsOnCancel(t *testing.T) {
	srv, gw := setup(t)
	orderID := placeOrder(t, srv, gw)

	ctx, cancel := context.WithCancel(context.Background())
	updates := tracker.New(gw, pollEvery, nil).Watch(ctx, orderID)

	next(t, updates)
	cancel()
	for range updates {
	}
}

func TestWatch_UnknownOrder(t *testing.T) {
	_, gw := setup(t)

	updates := tracker.New(gw, pollEvery, nil).Watch(context.Background(), 424242)

	u := next(t, updates)
	require.Error(t, u.Err)
	requireClosed(t, updates)
}

// flakySource fails its first poll, then reports a completed order.
type flakySource struct {
	calls atomic.Int32
}

func (f *flakySource) GetOrder(_ context.Context, id int) (*pizzasdk.Order, error) {
	if f.calls.Add(1) == 1 {
		return nil, errors.New("connection reset")
	}
	return &pizzasdk.Order{OrderID: id, Status: pizzasdk.StatusCompleted}, nil
}

func (f *flakySource) ListMyOrders(context.Context) ([]pizzasdk.Order, error) {
	return nil, nil
}

func TestWatch_RetriesTransientFailures(t *testing.T) {
	src := &flakySource{}
	updates := tracker.New(src, pollEvery, nil).Watch(context.Background(), 7)

	u := next(t, updates)
	require.ErrorContains(t, u.Err, "connection reset")

	u = next(t, updates)
	require.NoError(t, u.Err)
	require.Equal(t, pizzasdk.StatusCompleted, u.Order.Status)
	requireClosed(t, updates)
}

func TestWatchAll(t *testing.T) {
	srv, gw := setup(t)

	t.Run("no orders closes immediately", func(t *testing.T) {
		requireClosed(t, tracker.New(gw, pollEvery, nil).WatchAll(context.Background()))
	})

	first := placeOrder(t, srv, gw)
	second := placeOrder(t, srv, gw)
	srv.SetOrderStatus(second, pizzasdk.StatusCompleted)

	updates := tracker.New(gw, pollEvery, nil).WatchAll(context.Background())

	seen := map[int]pizzasdk.OrderStatus{}
	for range 2 {
		u := next(t, updates)
		require.NoError(t, u.Err)
		seen[u.Order.OrderID] = u.Order.Status
	}
	require.Equal(t, pizzasdk.StatusPending, seen[first])
	require.Equal(t, pizzasdk.StatusCompleted, seen[second])

	srv.SetOrderStatus(first, pizzasdk.StatusCompleted)

	u := next(t, updates)
	require.Equal(t, first, u.Order.OrderID)
	require.Equal(t, pizzasdk.StatusPending, u.Previous)
	requireClosed(t, updates)
}
