package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/dealerdesk/internal/cli"
	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/domain"
	issuerhttp "github.com/aussiebroadwan/dealerdesk/internal/devissuer/http"
	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/service"
	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/store/drivers/sqlite"
	"github.com/aussiebroadwan/dealerdesk/pkg/cryptox"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/aussiebroadwan/dealerdesk/pkg/sessionsdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const seedPassword = "correct-horse"

type issuer struct {
	url string

	mu     sync.Mutex
	resets map[string]string
}

func newIssuer(t *testing.T, accessTTL time.Duration) *issuer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	_, err = service.Seed(context.Background(), st, service.DefaultSeedUsers, seedPassword)
	require.NoError(t, err)

	pemKey, err := cryptox.NewSigningKeyPEM()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("test", pemKey)
	require.NoError(t, err)

	is := &issuer{resets: map[string]string{}}

	r := issuerhttp.NewRouter(signer.Verifier("cli-test"), "test", st,
		slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	r.AuthService = &service.AuthService{
		Store:      st,
		Signer:     signer,
		Issuer:     "cli-test",
		AccessTTL:  accessTTL,
		RefreshTTL: time.Hour,
		Notify: func(_ context.Context, u domain.User, token string) {
			is.mu.Lock()
			is.resets[u.Email] = token
			is.mu.Unlock()
		},
	}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	is.url = srv.URL
	return is
}

func (is *issuer) config(t *testing.T) cli.Config {
	t.Helper()

	return cli.Config{
		APIURL:           is.url,
		RefreshThreshold: sessionsdk.DefaultRefreshThreshold,
		RefreshTimeout:   time.Second,
		HTTPTimeout:      time.Second,
		StoreKind:        cli.StoreFile,
		StorePath:        filepath.Join(t.TempDir(), "session.json"),
		LogLevel:         "error",
		LogFormat:        "text",
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, cfg cli.Config, stdin string, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	c := &cli.CLI{
		Config: cfg,
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
	}
	code := c.Run(context.Background(), args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestSessionAcrossInvocations(t *testing.T) {
	t.Parallel()

	is := newIssuer(t, 15*time.Minute)
	cfg := is.config(t)

	res := run(t, cfg, "", "status")
	require.Equal(t, cli.ExitNo, res.code)
	require.Contains(t, res.stdout, "not logged in")

	res = run(t, cfg, seedPassword+"\n", "login", "-u", "salesman")
	require.Equal(t, cli.ExitOK, res.code, res.stderr)
	require.Contains(t, res.stdout, "logged in as salesman (salesman)")

	// Each run is a fresh client reading the persisted session.
	res = run(t, cfg, "", "status")
	require.Equal(t, cli.ExitOK, res.code)

	res = run(t, cfg, "", "whoami")
	require.Equal(t, cli.ExitOK, res.code)
	var u sessionsdk.User
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &u))
	require.Equal(t, "salesman", u.Username)
	require.Equal(t, jwtx.RoleSalesman, u.Role)

	res = run(t, cfg, "", "can", "orders:write")
	require.Equal(t, cli.ExitOK, res.code)
	require.Equal(t, "yes\n", res.stdout)

	res = run(t, cfg, "", "can", "users:write")
	require.Equal(t, cli.ExitNo, res.code)
	require.Equal(t, "no\n", res.stdout)

	res = run(t, cfg, "", "is", "admin", "salesman")
	require.Equal(t, cli.ExitOK, res.code)

	res = run(t, cfg, "", "is", "retailer")
	require.Equal(t, cli.ExitNo, res.code)

	res = run(t, cfg, "", "get", "api/orders")
	require.Equal(t, cli.ExitOK, res.code)
	require.Contains(t, res.stdout, "ord-1001")

	res = run(t, cfg, "", "get", "/api/reports")
	require.Equal(t, cli.ExitNo, res.code)
	require.Contains(t, res.stderr, "403")

	res = run(t, cfg, "", "logout")
	require.Equal(t, cli.ExitOK, res.code)

	res = run(t, cfg, "", "can", "orders:read")
	require.Equal(t, cli.ExitNo, res.code)

	res = run(t, cfg, "", "get", "/api/orders")
	require.Equal(t, cli.ExitNo, res.code)
	require.Contains(t, res.stderr, "401")
}

func TestStatusRenewsShortLivedSession(t *testing.T) {
	t.Parallel()

	is := newIssuer(t, time.Minute)
	cfg := is.config(t)

	res := run(t, cfg, "", "login", "-u", "distributor", "-p", seedPassword)
	require.Equal(t, cli.ExitOK, res.code, res.stderr)

	before, err := filepathRead(cfg.StorePath)
	require.NoError(t, err)

	res = run(t, cfg, "", "status")
	require.Equal(t, cli.ExitOK, res.code)

	after, err := filepathRead(cfg.StorePath)
	require.NoError(t, err)
	require.NotEqual(t, before, after, "status renews a token inside the threshold")
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()

	is := newIssuer(t, 15*time.Minute)
	cfg := is.config(t)

	res := run(t, cfg, "", "login", "-u", "admin", "-p", "wrong-password")
	require.Equal(t, cli.ExitNo, res.code)
	require.Contains(t, res.stderr, "Invalid username or password")

	res = run(t, cfg, "", "login")
	require.Equal(t, cli.ExitUsage, res.code)

	cfg.APIURL = "http://127.0.0.1:1"
	res = run(t, cfg, "", "login", "-u", "admin", "-p", seedPassword)
	require.Equal(t, cli.ExitNo, res.code)
	require.Contains(t, res.stderr, "issuer unreachable")
}

func TestRegisterAndReset(t *testing.T) {
	t.Parallel()

	is := newIssuer(t, 15*time.Minute)
	cfg := is.config(t)

	res := run(t, cfg, "", "register", "-u", "cornerstore", "-e", "corner@example.com", "-p", "longenough")
	require.Equal(t, cli.ExitOK, res.code, res.stderr)
	require.Contains(t, res.stdout, "cornerstore (retailer)")

	res = run(t, cfg, "longenough\nbrand-new-pw\n", "passwd")
	require.Equal(t, cli.ExitOK, res.code, res.stderr)

	res = run(t, cfg, "", "forgot", "corner@example.com")
	require.Equal(t, cli.ExitOK, res.code)

	is.mu.Lock()
	token := is.resets["corner@example.com"]
	is.mu.Unlock()
	require.NotEmpty(t, token)

	res = run(t, cfg, "", "reset", "-token", token, "-new", "third-password")
	require.Equal(t, cli.ExitOK, res.code, res.stderr)

	res = run(t, cfg, "", "reset", "-token", token, "-new", "fourth-password")
	require.Equal(t, cli.ExitNo, res.code)
	require.Contains(t, res.stderr, "Invalid or expired reset token")

	res = run(t, cfg, "", "login", "-u", "cornerstore", "-p", "third-password")
	require.Equal(t, cli.ExitOK, res.code, res.stderr)
}

func TestUsage(t *testing.T) {
	t.Parallel()

	cfg := cli.Config{APIURL: "http://localhost:8080", StoreKind: cli.StoreMemory}

	res := run(t, cfg, "")
	require.Equal(t, cli.ExitUsage, res.code)
	require.Contains(t, res.stderr, "usage: dealerctl")

	res = run(t, cfg, "", "help")
	require.Equal(t, cli.ExitOK, res.code)
	require.Contains(t, res.stderr, "whoami")

	res = run(t, cfg, "", "frobnicate")
	require.Equal(t, cli.ExitUsage, res.code)
	require.Contains(t, res.stderr, `unknown command "frobnicate"`)

	res = run(t, cfg, "", "can")
	require.Equal(t, cli.ExitUsage, res.code)
	require.Contains(t, res.stderr, "usage: dealerctl can PERMISSION")

	cfg.APIURL = "not a url"
	res = run(t, cfg, "", "status")
	require.Equal(t, cli.ExitUsage, res.code)
}
