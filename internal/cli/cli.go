// Package cli implements the pizzeria command-line client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/aussiebroadwan/pizzeria/internal/app"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/spf13/pflag"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// usageError marks a malformed command line.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// command is one node of the command tree.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *CLI, args []string) error
	subs    []*command
}

var commands = []*command{
	{name: "login", summary: "sign in: login <email> [--password p]", run: runLogin},
	{name: "logout", summary: "forget stored credentials", run: runLogout},
	{name: "register", summary: "create an account: register --name n --email e --password p", run: runRegister},
	{name: "whoami", summary: "show the signed-in identity", run: runWhoami},
	{name: "menu", summary: "list pizzas", run: runMenu},
	{name: "toppings", summary: "list toppings", run: runToppings},
	{name: "cart", summary: "show the cart", run: runCart, subs: []*command{
		{name: "add", summary: "add <pizza-id> [--qty n] [--topping id[:qty]]...", run: runCartAdd},
		{name: "remove", summary: "remove <cart-item-id>", run: runCartRemove},
		{name: "qty", summary: "qty <cart-item-id> <quantity>", run: runCartQty},
		{name: "coupon", summary: "coupon <code>", run: runCartCoupon},
		{name: "uncoupon", summary: "remove the applied coupon", run: runCartUncoupon},
	}},
	{name: "coupons", summary: "list coupons you can still use", run: runCoupons},
	{name: "checkout", summary: "pay and place the order: checkout --card n --expiry MM/YY --cvv n", run: runCheckout},
	{name: "orders", summary: "list your orders [--watch]", run: runOrders},
	{name: "order", summary: "show one order: order <id> [--watch]", run: runOrder},
	{name: "admin", summary: "administration commands", subs: adminCommands},
}

// CLI is one invocation of the client.
type CLI struct {
	app    *app.Application
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

// Run executes args (without the program name) and returns the exit code.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("pizzeria", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(stderr)
	app.RegisterFlags(global)
	global.Usage = func() { printUsage(stderr, global) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr, global)
		return ExitUsage
	}

	cmd, cmdArgs, err := resolve(commands, rest)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return ExitUsage
	}

	cfg, err := app.LoadConfig(global)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return ExitError
	}
	cfg.LogOutput = stderr

	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return ExitError
	}
	defer func() {
		if err := application.Close(); err != nil {
			application.Logger.Error("failed to close application", "error", err)
		}
	}()

	c := &CLI{
		app:    application,
		in:     bufio.NewReader(stdin),
		out:    stdout,
		errOut: stderr,
	}

	if err := cmd.run(ctx, c, cmdArgs); err != nil {
		return c.report(err)
	}
	return ExitOK
}

// resolve walks the command tree. A command with subcommands but no runner
// requires one of them.
func resolve(cmds []*command, args []string) (*command, []string, error) {
	for _, cmd := range cmds {
		if cmd.name != args[0] {
			continue
		}
		if len(args) > 1 && len(cmd.subs) > 0 {
			for _, sub := range cmd.subs {
				if sub.name == args[1] {
					return resolve(cmd.subs, args[1:])
				}
			}
		}
		if cmd.run == nil {
			return nil, nil, fmt.Errorf("%s: missing subcommand (%s)", cmd.name, names(cmd.subs))
		}
		return cmd, args[1:], nil
	}
	return nil, nil, fmt.Errorf("unknown command %q", args[0])
}

func names(cmds []*command) string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.name
	}
	return strings.Join(out, ", ")
}

func printUsage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: pizzeria [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var walk func(prefix string, cmds []*command)
	walk = func(prefix string, cmds []*command) {
		for _, cmd := range cmds {
			fmt.Fprintf(tw, "  %s%s\t%s\n", prefix, cmd.name, cmd.summary)
			walk(prefix+cmd.name+" ", cmd.subs)
		}
	}
	walk("", commands)
	_ = tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fmt.Fprint(w, global.FlagUsages())
}

// report prints err and maps it to an exit code.
func (c *CLI) report(err error) int {
	var apiErr *pizzasdk.APIError
	var usage usageError

	switch {
	case errors.As(err, &usage):
		fmt.Fprintln(c.errOut, "usage:", usage.msg)
		return ExitUsage
	case errors.Is(err, pizzasdk.ErrRenewalFailed), errors.Is(err, pizzasdk.ErrNoRefreshCredential):
		c.app.Logger.Debug("renewal failed", "error", err)
		fmt.Fprintln(c.errOut, "error:", app.ErrSessionExpired)
	case errors.Is(err, pizzasdk.ErrUnauthenticated):
		fmt.Fprintln(c.errOut, "error: not signed in; run `pizzeria login <email>`")
	case errors.Is(err, pizzasdk.ErrForbidden):
		fmt.Fprintln(c.errOut, "error: this command needs an admin account")
	case errors.As(err, &apiErr):
		fmt.Fprintf(c.errOut, "error: %s (HTTP %d)\n", apiErr.Detail, apiErr.StatusCode)
	default:
		fmt.Fprintln(c.errOut, "error:", err)
	}
	return ExitError
}

// flags returns a flag set for a command that reports to stderr.
func (c *CLI) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// parse parses args and checks the positional argument count.
func parse(fs *pflag.FlagSet, args []string, positional int, usage string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, usageError{msg: err.Error()}
	}
	if fs.NArg() != positional {
		return nil, usagef("%s", usage)
	}
	return fs.Args(), nil
}

// atoi parses a positive id or quantity.
func atoi(what, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, usagef("%s must be a positive integer, got %q", what, s)
	}
	return n, nil
}

// prompt reads one line from stdin after printing label.
func (c *CLI) prompt(label string) (string, error) {
	fmt.Fprint(c.errOut, label)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ":")), err)
	}
	return strings.TrimSpace(line), nil
}

func (c *CLI) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
