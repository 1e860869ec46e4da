package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/pizzeria/internal/storefronttest"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/stretchr/testify/require"
)

const (
	customerEmail    = "ada@example.com"
	customerPassword = "hunter22"
	adminEmail       = "root@example.com"
	adminPassword    = "correct-horse"

	evenCard = "4111111111111112"
	oddCard  = "4111111111111111"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// harness runs the client against a fake storefront with its own state file.
type harness struct {
	t   *testing.T
	srv *storefronttest.Server
	db  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("PIZZERIA_PAYMENT_DELAY", "0s")
	t.Setenv("PIZZERIA_POLL_INTERVAL", "10ms")

	srv := storefronttest.New(t)
	srv.SeedUser("Ada", customerEmail, customerPassword, pizzasdk.RoleUser)
	srv.SeedUser("Root", adminEmail, adminPassword, pizzasdk.RoleAdmin)

	return &harness{t: t, srv: srv, db: filepath.Join(dir, "state.db")}
}

func (h *harness) runWithInput(stdin string, args ...string) result {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	full := append([]string{
		"--base-url", h.srv.URL,
		"--store-driver", "sqlite",
		"--database-file", h.db,
	}, args...)

	var stdout, stderr bytes.Buffer
	code := Run(ctx, full, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (h *harness) run(args ...string) result {
	h.t.Helper()
	return h.runWithInput("", args...)
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	res := h.run(args...)
	require.Equal(h.t, ExitOK, res.code, "pizzeria %s\nstderr: %s", strings.Join(args, " "), res.stderr)
	return res.stdout
}

func TestRun_OrderFlow(t *testing.T) {
	h := newHarness(t)
	margherita := h.srv.SeedPizza("Margherita", "Tomato and mozzarella", 10)
	olives := h.srv.SeedTopping("Olives", 1.5)
	h.srv.SeedCoupon("SAVE5", 5, time.Now().AddDate(0, 1, 0))

	res := h.runWithInput(customerPassword+"\n", "login", customerEmail)
	require.Equal(t, ExitOK, res.code, res.stderr)
	require.Contains(t, res.stdout, "Signed in as Ada (user)")
	require.Contains(t, res.stderr, "Password: ")

	out := h.mustRun("whoami")
	require.Contains(t, out, customerEmail)
	require.Contains(t, out, "user")

	out = h.mustRun("menu")
	require.Contains(t, out, "Margherita")
	require.Contains(t, out, "$10.00")

	require.Contains(t, h.mustRun("cart"), "Your cart is empty")

	out = h.mustRun("cart", "add", fmt.Sprint(margherita), "--qty", "2", "--topping", fmt.Sprintf("%d:2", olives))
	require.Contains(t, out, "quantity 2")

	require.Contains(t, h.mustRun("coupons"), "SAVE5")
	require.Contains(t, h.mustRun("cart", "coupon", "SAVE5"), "Coupon SAVE5 applied")

	out = h.mustRun("cart")
	require.Contains(t, out, "Olives x2")
	require.Contains(t, out, "$23.00")
	require.Contains(t, out, "-$5.00")
	require.Contains(t, out, "$18.00")

	t.Run("declined card keeps the cart", func(t *testing.T) {
		res := h.run("checkout", "--card", oddCard, "--expiry", "12/99", "--cvv", "123")
		require.Equal(t, ExitError, res.code)
		require.Contains(t, res.stderr, "declined")
		require.NotContains(t, h.mustRun("cart"), "Your cart is empty")
	})

	t.Run("malformed card is a usage error", func(t *testing.T) {
		res := h.run("checkout", "--card", "1234", "--expiry", "12/99", "--cvv", "123")
		require.Equal(t, ExitUsage, res.code)
	})

	out = h.mustRun("checkout", "--card", evenCard, "--expiry", "12/99", "--cvv", "123")
	var orderID int
	_, err := fmt.Sscanf(out, "Order %d placed", &orderID)
	require.NoError(t, err)
	require.Contains(t, out, "$18.00 charged")

	require.Contains(t, h.mustRun("cart"), "Your cart is empty")
	require.Contains(t, h.mustRun("orders"), "Pending")

	out = h.mustRun("order", fmt.Sprint(orderID))
	require.Contains(t, out, "Margherita")
	require.Contains(t, out, "$18.00")

	h.srv.SetOrderStatus(orderID, pizzasdk.StatusCompleted)
	out = h.mustRun("order", fmt.Sprint(orderID), "--watch")
	require.Equal(t, fmt.Sprintf("Order %d: Completed\n", orderID), out)

	require.Contains(t, h.mustRun("logout"), "Signed out")
	res = h.run("cart")
	require.Equal(t, ExitError, res.code)
	require.Contains(t, res.stderr, "not signed in")
}

func TestRun_SessionExpired(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", customerEmail, "--password", customerPassword)

	t.Run("renews transparently", func(t *testing.T) {
		h.srv.ExpireAccess()
		h.mustRun("cart")
		require.Equal(t, 1, h.srv.RefreshCalls())
	})

	h.srv.ExpireAccess()
	h.srv.RevokeRefresh()

	res := h.run("cart")
	require.Equal(t, ExitError, res.code)
	require.Contains(t, res.stderr, "session expired, please log in")

	res = h.run("cart")
	require.Equal(t, ExitError, res.code)
	require.Contains(t, res.stderr, "not signed in", "credentials are cleared after a failed renewal")
}

func TestRun_Admin(t *testing.T) {
	h := newHarness(t)
	pizza := h.srv.SeedPizza("Marinara", "No cheese", 8)

	h.mustRun("login", customerEmail, "--password", customerPassword)
	h.mustRun("cart", "add", fmt.Sprint(pizza))
	out := h.mustRun("checkout", "--card", evenCard, "--expiry", "12/99", "--cvv", "123")
	var orderID int
	_, err := fmt.Sscanf(out, "Order %d placed", &orderID)
	require.NoError(t, err)

	res := h.run("admin", "users")
	require.Equal(t, ExitError, res.code)
	require.Contains(t, res.stderr, "needs an admin account")

	h.mustRun("login", adminEmail, "--password", adminPassword)

	out = h.mustRun("admin", "users")
	require.Contains(t, out, customerEmail)
	require.Contains(t, out, adminEmail)

	out = h.mustRun("admin", "orders")
	require.Contains(t, out, "Pending")

	out = h.mustRun("admin", "order-status", fmt.Sprint(orderID), "baking")
	require.Contains(t, out, "is now Baking")

	res = h.run("admin", "order-status", fmt.Sprint(orderID), "burnt")
	require.Equal(t, ExitUsage, res.code)

	image := filepath.Join(t.TempDir(), "capricciosa.jpg")
	require.NoError(t, os.WriteFile(image, []byte("jpeg"), 0o600))
	out = h.mustRun("admin", "pizza", "add", "--name", "Capricciosa", "--price", "12.5", "--image", image)
	require.Contains(t, out, "Created pizza")
	require.Contains(t, h.mustRun("menu"), "Capricciosa")

	out = h.mustRun("admin", "topping", "add", "--name", "Artichoke", "--price", "1.75")
	require.Contains(t, out, "Artichoke ($1.75)")

	h.mustRun("admin", "coupon", "add", "--code", "SPRING", "--discount", "3", "--expires", "2099-03-01", "--limit", "10")
	require.Contains(t, h.mustRun("admin", "coupon", "list"), "SPRING")

	require.Contains(t, h.mustRun("admin", "order-delete", fmt.Sprint(orderID)), "Deleted order")
	res = h.run("order", fmt.Sprint(orderID))
	require.Equal(t, ExitError, res.code)
	require.Contains(t, res.stderr, "HTTP 404")
}

func TestRun_Usage(t *testing.T) {
	h := newHarness(t)

	t.Run("no command", func(t *testing.T) {
		res := h.run()
		require.Equal(t, ExitUsage, res.code)
		require.Contains(t, res.stderr, "usage: pizzeria")
		require.Contains(t, res.stderr, "admin pizza add")
	})

	t.Run("unknown command", func(t *testing.T) {
		res := h.run("bake")
		require.Equal(t, ExitUsage, res.code)
		require.Contains(t, res.stderr, `unknown command "bake"`)
	})

	t.Run("missing subcommand", func(t *testing.T) {
		res := h.run("admin", "pizza")
		require.Equal(t, ExitUsage, res.code)
		require.Contains(t, res.stderr, "add, update, delete")
	})

	t.Run("bad id", func(t *testing.T) {
		res := h.run("order", "abc")
		require.Equal(t, ExitUsage, res.code)
		require.Contains(t, res.stderr, "order id must be a positive integer")
	})

	t.Run("not signed in", func(t *testing.T) {
		res := h.run("orders")
		require.Equal(t, ExitError, res.code)
		require.Contains(t, res.stderr, "pizzeria login")
	})
}

func TestParseToppings(t *testing.T) {
	got, err := parseToppings([]string{"3", "4:2"})
	require.NoError(t, err)
	require.Equal(t, []pizzasdk.ToppingSelection{{ToppingID: 3, Quantity: 1}, {ToppingID: 4, Quantity: 2}}, got)

	_, err = parseToppings([]string{"4:0"})
	require.Error(t, err)
}
