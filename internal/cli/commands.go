package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/aussiebroadwan/dealerdesk/pkg/sessionsdk"
)

// errNo is a negative answer that has already been reported.
var errNo = errors.New("no")

func (c *CLI) login(ctx context.Context, fs *flag.FlagSet, args []string) error {
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || fs.NArg() > 0 {
		return errUsage
	}

	pass, err := c.prompt("Password", *password)
	if err != nil {
		return err
	}

	if _, err := c.client.Login(ctx, sessionsdk.Credentials{Username: *username, Password: pass}); err != nil {
		return err
	}
	return c.printIdentity(ctx, "logged in as")
}

func (c *CLI) register(ctx context.Context, fs *flag.FlagSet, args []string) error {
	username := fs.String("u", "", "username")
	email := fs.String("e", "", "email address")
	password := fs.String("p", "", "password (prompted when omitted)")
	name := fs.String("name", "", "full name")
	role := fs.String("role", "", "role (distributor, salesman or retailer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" || fs.NArg() > 0 {
		return errUsage
	}

	pass, err := c.prompt("Password", *password)
	if err != nil {
		return err
	}

	_, err = c.client.Register(ctx, sessionsdk.Registration{
		Username: *username,
		Email:    *email,
		Password: pass,
		FullName: *name,
		Role:     jwtx.Role(*role),
	})
	if err != nil {
		return err
	}
	return c.printIdentity(ctx, "registered and logged in as")
}

func (c *CLI) logout(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.Stdout, "logged out")
	return nil
}

func (c *CLI) status(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !c.client.InitializeAuth(ctx) {
		fmt.Fprintln(c.Stdout, "not logged in")
		return errNo
	}
	return c.printIdentity(ctx, "logged in as")
}

func (c *CLI) whoami(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !c.client.InitializeAuth(ctx) {
		fmt.Fprintln(c.Stderr, "not logged in")
		return errNo
	}

	u, ok := c.client.CurrentUser(ctx)
	if !ok {
		return errNo
	}

	enc := json.NewEncoder(c.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(u)
}

func (c *CLI) can(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	c.client.InitializeAuth(ctx)
	return c.answer(c.client.HasPermission(ctx, fs.Arg(0)))
}

func (c *CLI) is(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	roles := make([]jwtx.Role, 0, fs.NArg())
	for _, r := range fs.Args() {
		roles = append(roles, jwtx.Role(r))
	}

	c.client.InitializeAuth(ctx)
	return c.answer(c.client.HasRole(ctx, roles...))
}

func (c *CLI) passwd(ctx context.Context, fs *flag.FlagSet, args []string) error {
	current := fs.String("current", "", "current password (prompted when omitted)")
	next := fs.String("new", "", "new password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !c.client.InitializeAuth(ctx) {
		fmt.Fprintln(c.Stderr, "not logged in")
		return errNo
	}

	cur, err := c.prompt("Current password", *current)
	if err != nil {
		return err
	}
	nxt, err := c.prompt("New password", *next)
	if err != nil {
		return err
	}

	if err := c.client.UpdatePassword(ctx, cur, nxt); err != nil {
		return err
	}
	fmt.Fprintln(c.Stdout, "password updated")
	return nil
}

func (c *CLI) forgot(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	if err := c.client.RequestPasswordReset(ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Fprintln(c.Stdout, "if the account exists, a reset token has been sent")
	return nil
}

func (c *CLI) reset(ctx context.Context, fs *flag.FlagSet, args []string) error {
	token := fs.String("token", "", "reset token")
	next := fs.String("new", "", "new password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errUsage
	}

	nxt, err := c.prompt("New password", *next)
	if err != nil {
		return err
	}

	if err := c.client.ResetPassword(ctx, *token, nxt); err != nil {
		return err
	}
	fmt.Fprintln(c.Stdout, "password reset, log in with the new password")
	return nil
}

func (c *CLI) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	path := fs.Arg(0)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	c.client.InitializeAuth(ctx)

	req, err := c.client.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(c.Stdout, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		fmt.Fprintf(c.Stderr, "dealerctl: %s\n", resp.Status)
		return errNo
	}
	return nil
}

func (c *CLI) answer(yes bool) error {
	if yes {
		fmt.Fprintln(c.Stdout, "yes")
		return nil
	}
	fmt.Fprintln(c.Stdout, "no")
	return errNo
}

func (c *CLI) printIdentity(ctx context.Context, prefix string) error {
	u, ok := c.client.CurrentUser(ctx)
	if !ok {
		fmt.Fprintln(c.Stdout, prefix, "unknown user")
		return nil
	}
	fmt.Fprintf(c.Stdout, "%s %s (%s)\n", prefix, u.Username, u.Role)
	return nil
}
