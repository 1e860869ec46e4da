package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/pizzeria/internal/payment"
	"github.com/aussiebroadwan/pizzeria/internal/tracker"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
)

func runMenu(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("menu"), args, 0, "menu"); err != nil {
		return err
	}

	pizzas, err := c.app.Client.ListPizzas(ctx)
	if err != nil {
		return err
	}

	tw := c.table()
	fmt.Fprintln(tw, "ID\tPIZZA\tPRICE\tDESCRIPTION")
	for _, p := range pizzas {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Name, money(p.Price), p.Description)
	}
	return tw.Flush()
}

func runToppings(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("toppings"), args, 0, "toppings"); err != nil {
		return err
	}

	toppings, err := c.app.Client.ListToppings(ctx)
	if err != nil {
		return err
	}

	tw := c.table()
	fmt.Fprintln(tw, "ID\tTOPPING\tPRICE")
	for _, t := range toppings {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", t.ID, t.Name, money(t.Price))
	}
	return tw.Flush()
}

// ============================================================================
// Cart
// ============================================================================

func runCart(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("cart"), args, 0, "cart [add|remove|qty|coupon|uncoupon]"); err != nil {
		return err
	}

	cart, err := c.app.Gateway.GetCart(ctx)
	if err != nil {
		return err
	}
	if cart.IsEmpty() {
		fmt.Fprintln(c.out, "Your cart is empty")
		return nil
	}

	tw := c.table()
	fmt.Fprintln(tw, "LINE\tPIZZA\tQTY\tEACH\tTOPPINGS\tTOTAL")
	for _, it := range cart.Items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
			it.CartItemID, it.PizzaName, it.Quantity, money(it.ItemPrice),
			describeToppings(it.Toppings), money(it.LineTotal()))
	}
	fmt.Fprintf(tw, "\t\t\t\tSubtotal\t%s\n", money(cart.TotalPrice))
	if cart.HasDiscount() {
		fmt.Fprintf(tw, "\t\t\t\tCoupon\t-%s\n", money(cart.Savings()))
	}
	fmt.Fprintf(tw, "\t\t\t\tTo pay\t%s\n", money(cart.Payable()))
	return tw.Flush()
}

func describeToppings(toppings []pizzasdk.CartTopping) string {
	if len(toppings) == 0 {
		return "-"
	}
	parts := make([]string, len(toppings))
	for i, t := range toppings {
		parts[i] = fmt.Sprintf("%s x%d", t.ToppingName, t.Quantity)
	}
	return strings.Join(parts, ", ")
}

// parseToppings turns "id" or "id:qty" values into selections.
func parseToppings(values []string) ([]pizzasdk.ToppingSelection, error) {
	out := make([]pizzasdk.ToppingSelection, 0, len(values))
	for _, v := range values {
		idPart, qtyPart, hasQty := strings.Cut(v, ":")
		id, err := atoi("topping id", idPart)
		if err != nil {
			return nil, err
		}
		qty := 1
		if hasQty {
			if qty, err = atoi("topping quantity", qtyPart); err != nil {
				return nil, err
			}
		}
		out = append(out, pizzasdk.ToppingSelection{ToppingID: id, Quantity: qty})
	}
	return out, nil
}

func runCartAdd(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("cart add")
	qty := fs.Int("qty", 1, "number of pizzas")
	toppings := fs.StringArray("topping", nil, "topping id, optionally id:quantity; repeatable")
	pos, err := parse(fs, args, 1, "cart add <pizza-id> [--qty n] [--topping id[:qty]]...")
	if err != nil {
		return err
	}

	pizzaID, err := atoi("pizza id", pos[0])
	if err != nil {
		return err
	}
	if *qty <= 0 {
		return usagef("--qty must be positive")
	}
	selections, err := parseToppings(*toppings)
	if err != nil {
		return err
	}

	item, err := c.app.Gateway.AddToCart(ctx, pizzasdk.AddToCartRequest{
		PizzaID:  pizzaID,
		Quantity: *qty,
		Toppings: selections,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added to cart (line %d, quantity %d)\n", item.ID, item.Quantity)
	return nil
}

func runCartRemove(ctx context.Context, c *CLI, args []string) error {
	pos, err := parse(c.flags("cart remove"), args, 1, "cart remove <cart-item-id>")
	if err != nil {
		return err
	}
	id, err := atoi("cart item id", pos[0])
	if err != nil {
		return err
	}

	if err := c.app.Gateway.RemoveCartItem(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Removed from cart")
	return nil
}

func runCartQty(ctx context.Context, c *CLI, args []string) error {
	pos, err := parse(c.flags("cart qty"), args, 2, "cart qty <cart-item-id> <quantity>")
	if err != nil {
		return err
	}
	id, err := atoi("cart item id", pos[0])
	if err != nil {
		return err
	}
	qty, err := atoi("quantity", pos[1])
	if err != nil {
		return err
	}

	item, err := c.app.Gateway.UpdateCartItemQuantity(ctx, id, qty)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Line %d now has quantity %d\n", item.ID, item.Quantity)
	return nil
}

func runCartCoupon(ctx context.Context, c *CLI, args []string) error {
	pos, err := parse(c.flags("cart coupon"), args, 1, "cart coupon <code>")
	if err != nil {
		return err
	}
	if err := c.app.Gateway.ApplyCoupon(ctx, pos[0]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Coupon %s applied\n", pos[0])
	return nil
}

func runCartUncoupon(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("cart uncoupon"), args, 0, "cart uncoupon"); err != nil {
		return err
	}
	if err := c.app.Gateway.RemoveCoupon(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Coupon removed")
	return nil
}

func runCoupons(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("coupons"), args, 0, "coupons"); err != nil {
		return err
	}

	coupons, err := c.app.Gateway.ListAvailableCoupons(ctx)
	if err != nil {
		return err
	}
	if len(coupons) == 0 {
		fmt.Fprintln(c.out, "No coupons available")
		return nil
	}

	tw := c.table()
	fmt.Fprintln(tw, "CODE\tDISCOUNT\tEXPIRES")
	for _, cp := range coupons {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", cp.Code, money(cp.Discount), cp.ExpirationDate.Format("2006-01-02"))
	}
	return tw.Flush()
}

// ============================================================================
// Checkout and orders
// ============================================================================

func runCheckout(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("checkout")
	var card payment.Card
	fs.StringVar(&card.Number, "card", "", "16-digit card number")
	fs.StringVar(&card.Expiry, "expiry", "", "card expiry, MM/YY")
	fs.StringVar(&card.CVV, "cvv", "", "3-digit security code")
	if _, err := parse(fs, args, 0, "checkout --card n --expiry MM/YY --cvv n"); err != nil {
		return err
	}
	if err := card.Validate(); err != nil {
		return usagef("%v", err)
	}

	cart, err := c.app.Gateway.GetCart(ctx)
	if err != nil {
		return err
	}
	if cart.IsEmpty() {
		return fmt.Errorf("your cart is empty")
	}

	fmt.Fprintf(c.errOut, "Authorizing %s on card ending %s...\n", money(cart.Payable()), card.Last4())
	receipt, err := c.app.Payments.Charge(ctx, card, cart.Payable())
	if err != nil {
		return err
	}

	order, err := c.app.Gateway.Checkout(ctx)
	if err != nil {
		return fmt.Errorf("payment %s approved but order failed: %w", receipt.TransactionID, err)
	}

	fmt.Fprintf(c.out, "Order %d placed: %s charged (transaction %s)\n", order.ID, money(order.TotalPrice), receipt.TransactionID)
	fmt.Fprintf(c.out, "Track it with `pizzeria order %d --watch`\n", order.ID)
	return nil
}

func runOrders(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("orders")
	watch := fs.Bool("watch", false, "follow status changes until every order completes")
	if _, err := parse(fs, args, 0, "orders [--watch]"); err != nil {
		return err
	}

	if *watch {
		return c.follow(ctx, c.app.Tracker.WatchAll(ctx))
	}

	orders, err := c.app.Gateway.ListMyOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "No orders yet")
		return nil
	}

	tw := c.table()
	fmt.Fprintln(tw, "ORDER\tPLACED\tSTATUS\tTOTAL")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", o.OrderID, o.CreatedAt.Format("2006-01-02 15:04"), o.Status, money(o.TotalPrice))
	}
	return tw.Flush()
}

func runOrder(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("order")
	watch := fs.Bool("watch", false, "follow status changes until the order completes")
	pos, err := parse(fs, args, 1, "order <id> [--watch]")
	if err != nil {
		return err
	}
	id, err := atoi("order id", pos[0])
	if err != nil {
		return err
	}

	if *watch {
		return c.follow(ctx, c.app.Tracker.Watch(ctx, id))
	}

	order, err := c.app.Gateway.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Order %d (%s), placed %s\n", order.OrderID, order.Status, order.CreatedAt.Format("2006-01-02 15:04"))
	tw := c.table()
	fmt.Fprintln(tw, "PIZZA\tQTY\tTOPPINGS\tTOTAL")
	for _, it := range order.Items {
		labels := make([]string, len(it.Toppings))
		for i, t := range it.Toppings {
			labels[i] = fmt.Sprintf("%s x%d", t.ToppingName, t.Quantity)
		}
		toppings := strings.Join(labels, ", ")
		if toppings == "" {
			toppings = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", it.PizzaName, it.Quantity, toppings, money(it.LineTotal()))
	}
	fmt.Fprintf(tw, "\t\tCharged\t%s\n", money(order.TotalPrice))
	return tw.Flush()
}

// follow prints tracker updates until the channel closes. A failure that
// ended tracking is returned.
func (c *CLI) follow(ctx context.Context, updates <-chan tracker.Update) error {
	var last error
	for u := range updates {
		if u.Err != nil {
			c.app.Logger.WarnContext(ctx, "tracking poll failed", "error", u.Err)
			last = u.Err
			continue
		}
		last = nil
		fmt.Fprintf(c.out, "Order %d: %s\n", u.Order.OrderID, u.Order.Status)
	}
	if ctx.Err() != nil {
		return nil
	}
	return last
}
