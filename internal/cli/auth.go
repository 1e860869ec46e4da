package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
)

func runLogin(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("login")
	password := fs.String("password", "", "account password (prompted when omitted)")
	pos, err := parse(fs, args, 1, "login <email> [--password p]")
	if err != nil {
		return err
	}

	if *password == "" {
		if *password, err = c.prompt("Password: "); err != nil {
			return err
		}
	}

	_, resp, err := c.app.Client.Login(ctx, c.app.Store, pos[0], *password, c.app.GatewayOptions()...)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Signed in as %s (%s)\n", resp.Username, resp.Role)
	return nil
}

func runLogout(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("logout"), args, 0, "logout"); err != nil {
		return err
	}
	if err := c.app.Client.Logout(ctx, c.app.Store); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Signed out")
	return nil
}

func runRegister(ctx context.Context, c *CLI, args []string) error {
	fs := c.flags("register")
	var req pizzasdk.RegisterRequest
	fs.StringVar(&req.Name, "name", "", "display name")
	fs.StringVar(&req.Email, "email", "", "email address, used to sign in")
	fs.StringVar(&req.Password, "password", "", "password, at least 6 characters")
	if _, err := parse(fs, args, 0, "register --name n --email e --password p"); err != nil {
		return err
	}

	user, err := c.app.Client.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Registered %s <%s>; run `pizzeria login %s` to sign in\n", user.DisplayName(), user.Email, user.Email)
	return nil
}

func runWhoami(ctx context.Context, c *CLI, args []string) error {
	if _, err := parse(c.flags("whoami"), args, 0, "whoami"); err != nil {
		return err
	}

	claims, err := c.app.Gateway.Identity(ctx)
	if err != nil {
		return err
	}
	role, err := c.app.Gateway.Role(ctx)
	if err != nil {
		return err
	}

	tw := c.table()
	fmt.Fprintf(tw, "Email:\t%s\n", claims.Email())
	fmt.Fprintf(tw, "Name:\t%s\n", claims.Username)
	fmt.Fprintf(tw, "Role:\t%s\n", role)
	if exp := claims.ExpiresIn(time.Now()); exp > 0 {
		fmt.Fprintf(tw, "Session:\texpires in %s\n", exp.Round(time.Second))
	} else {
		fmt.Fprintf(tw, "Session:\texpired; renewed on next request\n")
	}
	return tw.Flush()
}
