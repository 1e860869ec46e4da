package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/spf13/pflag"
)

var adminCommands = []*command{
	{name: "users", summary: "list accounts", run: runAdminUsers},
	{name: "user", summary: "user <id> [--orders]", run: runAdminUser},
	{name: "create-admin", summary: "create-admin --name n --email e --password p", run: runAdminCreateAdmin},
	{name: "pizza", summary: "manage pizzas", subs: []*command{
		{name: "add", summary: "add --name n --price p [--description d] --image file", run: runAdminPizzaAdd},
		{name: "update", summary: "update <id> --name n --price p [--description d]", run: runAdminPizzaUpdate},
		{name: "delete", summary: "delete <id>", run: runAdminPizzaDelete},
	}},
	{name: "topping", summary: "manage toppings", subs: []*command{
		{name: "add", summary: "add --name n --price p", run: runAdminToppingAdd},
		{name: "update", summary: "update <id> --name n --price p", run: runAdminToppingUpdate},
		{name: "delete", summary: "delete <id>", run: runAdminToppingDelete},
	}},
	{name: "coupon", summary: "manage coupons", subs: []*command{
		{name: "list", summary: "list every coupon", run: runAdminCouponList},
		{name: "add", summary: "add --code c --discount d --expires YYYY-MM-DD [--limit n]", run: runAdminCouponAdd},
		{name: "update", summary: "update <id> --code c --discount d --expires YYYY-MM-DD [--limit n]", run: runAdminCouponUpdate},
		{name: "delete", summary: "delete <id>", run: runAdminCouponDelete},
	}},
	{name: "orders", summary: "list every order", run: runAdminOrders},
	{name: "order-status", summary: "order-status <id> <status>", run: runAdminOrderStatus},
	{name: "order-delete", summary: "order-delete <id>", run: runAdminOrderDelete},
}

// ============================================================================
// Users
// ============================================================================

func runAdminUsers(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("admin users"), args, 0, "admin users"); err != nil {
		return err
	}

	users, err := c.app.Gateway.ListUsers(ctx)
	if err != nil {
		return err
	}

	tw := c.table()
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.DisplayName(), u.Email, u.Role)
	}
	return tw.Flush()
}

func runAdminUser(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("admin user")
	withOrders := fs.Bool("orders", false, "also list the account's orders")
	pos, err := parse(fs, args, 1, "admin user <id> [--orders]")
	if err != nil {
		return err
	}
	id, err := atoi("user id", pos[0])
	if err != nil {
		return err
	}

	user, err := c.app.Gateway.GetUser(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d\t%s <%s> (%s)\n", user.ID, user.DisplayName(), user.Email, user.Role)

	if !*withOrders {
		return nil
	}
	orders, err := c.app.Gateway.ListUserOrders(ctx, id)
	if err != nil {
		return err
	}
	tw := c.table()
	fmt.Fprintln(tw, "ORDER\tPLACED\tSTATUS\tTOTAL")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", o.ID, o.CreatedAt.Format("2006-01-02 15:04"), o.Status, money(o.TotalPrice))
	}
	return tw.Flush()
}

func runAdminCreateAdmin(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("admin create-admin")
	var req pizzasdk.RegisterRequest
	fs.StringVar(&req.Name, "name", "", "display name")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.Password, "password", "", "initial password")
	if _, err := parse(fs, args, 0, "admin create-admin --name n --email e --password p"); err != nil {
		return err
	}

	user, err := c.app.Gateway.CreateAdmin(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Created admin %s <%s>\n", user.DisplayName(), user.Email)
	return nil
}

// ============================================================================
// Pizzas and toppings
// ============================================================================

func pizzaFlags(fs *pflag.FlagSet) *pizzasdk.PizzaInput {
	in := &pizzasdk.PizzaInput{}
	fs.StringVar(&in.Name, "name", "", "pizza name")
	fs.StringVar(&in.Description, "description", "", "menu description")
	fs.Float64Var(&in.Price, "price", 0, "price")
	return in
}

func runAdminPizzaAdd(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("admin pizza add")
	in := pizzaFlags(fs)
	image := fs.String("image", "", "image file to upload")
	if _, err := parse(fs, args, 0, "admin pizza add --name n --price p [--description d] --image file"); err != nil {
		return err
	}
	if *image == "" {
		return usagef("--image is required")
	}

	f, err := os.Open(*image)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	pizza, err := c.app.Gateway.CreatePizza(ctx, *in, filepath.Base(*image), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Created pizza %d %s (%s)\n", pizza.ID, pizza.Name, money(pizza.Price))
	return nil
}

func runAdminPizzaUpdate(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("admin pizza update")
	in := pizzaFlags(fs)
	pos, err := parse(fs, args, 1, "admin pizza update <id> --name n --price p [--description d]")
	if err != nil {
		return err
	}
	id, err := atoi("pizza id", pos[0])
	if err != nil {
		return err
	}

	pizza, err := c.app.Gateway.UpdatePizza(ctx, id, *in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Updated pizza %d %s (%s)\n", pizza.ID, pizza.Name, money(pizza.Price))
	return nil
}

func runAdminPizzaDelete(ctx context.Context, c *CLI, args []string) error {
	return deleteByID(ctx, c, args, "admin pizza delete", "pizza", c.app.Gateway.DeletePizza)
}

func toppingFlags(fs *pflag.FlagSet) *pizzasdk.ToppingInput {
	in := &pizzasdk.ToppingInput{}
	fs.StringVar(&in.Name, "name", "", "topping name")
	fs.Float64Var(&in.Price, "price", 0, "price per portion")
	return in
}

func runAdminToppingAdd(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("admin topping add")
	in := toppingFlags(fs)
	if _, err := parse(fs, args, 0, "admin topping add --name n --price p"); err != nil {
		return err
	}

	topping, err := c.app.Gateway.CreateTopping(ctx, *in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Created topping %d %s (%s)\n", topping.ID, topping.Name, money(topping.Price))
	return nil
}

func runAdminToppingUpdate(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("admin topping update")
	in := toppingFlags(fs)
	pos, err := parse(fs, args, 1, "admin topping update <id> --name n --price p")
	if err != nil {
		return err
	}
	id, err := atoi("topping id", pos[0])
	if err != nil {
		return err
	}

	topping, err := c.app.Gateway.UpdateTopping(ctx, id, *in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Updated topping %d %s (%s)\n", topping.ID, topping.Name, money(topping.Price))
	return nil
}

func runAdminToppingDelete(ctx context.Context, c *CLI, args []string) error {
	return deleteByID(ctx, c, args, "admin topping delete", "topping", c.app.Gateway.DeleteTopping)
}

// ============================================================================
// Coupons
// ============================================================================

func couponFlags(fs *pflag.FlagSet) *pizzasdk.CouponInput {
	in := &pizzasdk.CouponInput{}
	fs.StringVar(&in.Code, "code", "", "code customers type in")
	fs.Float64Var(&in.Discount, "discount", 0, "amount taken off the cart")
	fs.StringVar(&in.ExpirationDate, "expires", "", "last valid day, YYYY-MM-DD")
	fs.IntVar(&in.UsageLimit, "limit", 0, "usage limit, 0 for none")
	return in
}

func runAdminCouponList(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("admin coupon list"), args, 0, "admin coupon list"); err != nil {
		return err
	}

	coupons, err := c.app.Gateway.ListAllCoupons(ctx)
	if err != nil {
		return err
	}

	tw := c.table()
	fmt.Fprintln(tw, "ID\tCODE\tDISCOUNT\tEXPIRES\tLIMIT")
	for _, cp := range coupons {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", cp.ID, cp.Code, money(cp.Discount), cp.ExpirationDate.Format("2006-01-02"), cp.UsageLimit)
	}
	return tw.Flush()
}

func runAdminCouponAdd(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("admin coupon add")
	in := couponFlags(fs)
	if _, err := parse(fs, args, 0, "admin coupon add --code c --discount d --expires YYYY-MM-DD [--limit n]"); err != nil {
		return err
	}

	coupon, err := c.app.Gateway.CreateCoupon(ctx, *in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Created coupon %d %s\n", coupon.ID, coupon.Code)
	return nil
}

func runAdminCouponUpdate(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("admin coupon update")
	in := couponFlags(fs)
	pos, err := parse(fs, args, 1, "admin coupon update <id> --code c --discount d --expires YYYY-MM-DD [--limit n]")
	if err != nil {
		return err
	}
	id, err := atoi("coupon id", pos[0])
	if err != nil {
		return err
	}

	coupon, err := c.app.Gateway.UpdateCoupon(ctx, id, *in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Updated coupon %d %s\n", coupon.ID, coupon.Code)
	return nil
}

func runAdminCouponDelete(ctx context.Context, c *CLI, args []string) error {
	return deleteByID(ctx, c, args, "admin coupon delete", "coupon", c.app.Gateway.DeleteCoupon)
}

// ============================================================================
// Orders
// ============================================================================

func runAdminOrders(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("admin orders"), args, 0, "admin orders"); err != nil {
		return err
	}

	orders, err := c.app.Gateway.ListAllOrders(ctx)
	if err != nil {
		return err
	}

	tw := c.table()
	fmt.Fprintln(tw, "ORDER\tUSER\tPLACED\tSTATUS\tLINES\tTOTAL")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\n",
			o.Order.ID, o.Order.UserID, o.Order.CreatedAt.Format("2006-01-02 15:04"),
			o.Order.Status, len(o.OrderItems), money(o.Order.TotalPrice))
	}
	return tw.Flush()
}

func runAdminOrderStatus(ctx context.Context, c *CLI, args []string) error {
	pos, err := parse(c.flags("admin order-status"), args, 2, "admin order-status <id> <status>")
	if err != nil {
		return err
	}
	id, err := atoi("order id", pos[0])
	if err != nil {
		return err
	}
	status, err := pizzasdk.ParseOrderStatus(pos[1])
	if err != nil {
		return usagef("%v", err)
	}

	change, err := c.app.Gateway.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Order %d is now %s\n", change.OrderID, change.Status)
	return nil
}

func runAdminOrderDelete(ctx context.Context, c *CLI, args []string) error {
	return deleteByID(ctx, c, args, "admin order-delete", "order", c.app.Gateway.DeleteOrder)
}

func deleteByID(ctx context.Context, c *CLI, args []string, name, what string, del func(context.Context, int) error) error {
	pos, err := parse(c.flags(name), args, 1, name+" <id>")
	if err != nil {
		return err
	}
	id, err := atoi(what+" id", pos[0])
	if err != nil {
		return err
	}
	if err := del(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Deleted %s %d\n", what, id)
	return nil
}
