//go:build e2e

package session_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/sessionsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Container setup and helpers for the session client end-to-end tests.
 * The dev issuer image is built once per run.
 */

const (
	testImageName = "dealerdesk-devissuer-test:latest"
	testIssuer    = "dealerdesk-e2e"
	seedPassword  = "Seed-Password-1"
)

func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building dev issuer Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up dev issuer Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/devissuer/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	cmd := exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName)
	_ = cmd.Run()
}

// relaxedLimits keeps the strict production limits out of the way of tests
// that log in repeatedly.
var relaxedLimits = map[string]string{
	"RATELIMIT_STRICT_REQUESTS":   "1000",
	"RATELIMIT_STRICT_WINDOW_SEC": "60",
	"RATELIMIT_STRICT_BURST":      "1000",
	"RATELIMIT_MODERATE_REQUESTS": "1000",
	"RATELIMIT_MODERATE_BURST":    "1000",
}

// setupIssuer starts the dev issuer and returns its base URL. extra
// overrides or adds environment variables.
func setupIssuer(t *testing.T, extra ...map[string]string) string {
	t.Helper()
	ctx := context.Background()

	env := map[string]string{
		"ISSUER_NAME":          testIssuer,
		"ISSUER_SEED_PASSWORD": seedPassword,
		"ENV":                  "test",
		"LOG_LEVEL":            "info",
		"LOG_FORMAT":           "json",
	}
	for _, m := range extra {
		for k, v := range m {
			env[k] = v
		}
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          env,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
}

func newClient(t *testing.T, baseURL string, mutate ...func(*sessionsdk.Config)) *sessionsdk.Client {
	t.Helper()

	cfg := sessionsdk.Config{BaseURL: baseURL}
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := sessionsdk.NewClient(cfg)
	require.NoError(t, err)
	return c
}

func login(t *testing.T, c *sessionsdk.Client, username string) sessionsdk.Session {
	t.Helper()

	sess, err := c.Login(t.Context(), sessionsdk.Credentials{Username: username, Password: seedPassword})
	require.NoError(t, err)
	return sess
}

// getStatus performs an authorized GET and returns the status code.
func getStatus(t *testing.T, c *sessionsdk.Client, path string) int {
	t.Helper()

	req, err := c.NewRequest(t.Context(), http.MethodGet, path, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode
}

// scrape returns the issuer's /metrics body.
func scrape(t *testing.T, baseURL string) string {
	t.Helper()

	resp, err := http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

// issuedRefreshes reads the refresh grant counter from /metrics.
func issuedRefreshes(t *testing.T, baseURL string) string {
	t.Helper()

	const prefix = `dealerdesk_issuer_tokens_issued_total{grant="refresh"} `
	for _, line := range strings.Split(scrape(t, baseURL), "\n") {
		if v, ok := strings.CutPrefix(line, prefix); ok {
			return v
		}
	}
	return "0"
}
