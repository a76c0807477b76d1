// Package cli implements dealerctl, a command-line session client. Every
// invocation behaves like an application start: the stored session is
// verified (and renewed when close to expiry) before any authorized call.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/aussiebroadwan/dealerdesk/pkg/sessionsdk"
	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitNo    = 1 // failed, or a check answered no
	ExitUsage = 2
)

var errUsage = errors.New("usage")

// CLI runs one dealerctl command.
type CLI struct {
	Config Config
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Store overrides the configured backend.
	Store tokenstore.Store

	logger *slog.Logger
	client *sessionsdk.Client
	stdin  *bufio.Reader
}

type command struct {
	usage string
	help  string
	run   func(c *CLI, ctx context.Context, fs *flag.FlagSet, args []string) error
}

var commands = map[string]command{
	"login":    {"login -u USER [-p PASS]", "log in and store the session", (*CLI).login},
	"register": {"register -u USER -e EMAIL [-p PASS] [-name NAME] [-role ROLE]", "create an account and log in", (*CLI).register},
	"logout":   {"logout", "revoke and clear the stored session", (*CLI).logout},
	"status":   {"status", "verify the stored session, renewing it when close to expiry", (*CLI).status},
	"whoami":   {"whoami", "print the current user as JSON", (*CLI).whoami},
	"can":      {"can PERMISSION", "exit 0 when the user holds PERMISSION", (*CLI).can},
	"is":       {"is ROLE...", "exit 0 when the user has one of the roles", (*CLI).is},
	"passwd":   {"passwd [-current PASS] [-new PASS]", "change the password", (*CLI).passwd},
	"forgot":   {"forgot EMAIL", "request a password reset", (*CLI).forgot},
	"reset":    {"reset -token TOKEN [-new PASS]", "set a new password with a reset token", (*CLI).reset},
	"get":      {"get PATH", "GET an API path with the session attached", (*CLI).get},
}

// Run executes args and returns the process exit code.
func (c *CLI) Run(ctx context.Context, args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		c.usage()
		if len(args) == 0 {
			return ExitUsage
		}
		return ExitOK
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(c.Stderr, "dealerctl: unknown command %q\n\n", args[0])
		c.usage()
		return ExitUsage
	}

	c.logger = slogx.New(slogx.Config{
		Service: "dealerctl",
		Env:     c.Config.Env,
		Level:   c.Config.LogLevel,
		Format:  c.Config.LogFormat,
		Output:  c.Stderr,
	})
	ctx = slogx.WithContext(ctx, c.logger)
	c.stdin = bufio.NewReader(c.Stdin)

	store := c.Store
	if store == nil {
		st, closeStore, err := OpenStore(ctx, c.Config)
		if err != nil {
			fmt.Fprintf(c.Stderr, "dealerctl: open session store: %v\n", err)
			return ExitNo
		}
		defer func() {
			if err := closeStore(); err != nil {
				c.logger.Warn("close session store", "err", err)
			}
		}()
		store = st
	}

	client, err := sessionsdk.NewClient(sessionsdk.Config{
		BaseURL:          c.Config.APIURL,
		Store:            store,
		RefreshThreshold: c.Config.RefreshThreshold,
		RefreshTimeout:   c.Config.RefreshTimeout,
		Timeout:          c.Config.HTTPTimeout,
		Logger:           c.logger,
		OnSessionInvalid: func(err error) {
			fmt.Fprintln(c.Stderr, "dealerctl: session expired, log in again")
		},
	})
	if err != nil {
		fmt.Fprintf(c.Stderr, "dealerctl: %v\n", err)
		return ExitUsage
	}
	c.client = client

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	fs.Usage = func() { fmt.Fprintf(c.Stderr, "usage: dealerctl %s\n", cmd.usage) }

	err = cmd.run(c, ctx, fs, args[1:])
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fs.Usage()
		return ExitUsage
	case errors.Is(err, errNo):
		return ExitNo
	default:
		fmt.Fprintf(c.Stderr, "dealerctl: %s\n", describe(err))
		return ExitNo
	}
}

func (c *CLI) usage() {
	fmt.Fprintln(c.Stderr, "usage: dealerctl COMMAND [flags]")
	fmt.Fprintln(c.Stderr)

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(c.Stderr, "  %-10s %s\n", name, commands[name].help)
	}
}

// prompt reads a line from stdin when value is empty.
func (c *CLI) prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}

	fmt.Fprintf(c.Stderr, "%s: ", label)
	line, err := c.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// describe renders SDK errors the way a user wants to read them.
func describe(err error) string {
	var authErr *sessionsdk.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	var netErr *sessionsdk.NetworkError
	if errors.As(err, &netErr) {
		return "issuer unreachable: " + netErr.Err.Error()
	}
	return err.Error()
}
