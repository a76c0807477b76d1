package sessionsdk

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultRefreshThreshold is how close to exp a token may get before a
	// refresh is started ahead of time.
	DefaultRefreshThreshold = 5 * time.Minute

	// DefaultRefreshTimeout bounds a single call to the refresh endpoint.
	// Hitting it counts as a refresh failure.
	DefaultRefreshTimeout = 10 * time.Second

	// DefaultTimeout bounds issuer calls made by the plain client.
	DefaultTimeout = 10 * time.Second
)

// Config configures a Client. Only BaseURL is required.
type Config struct {
	// BaseURL of the issuer and backend, e.g. "https://api.example.com".
	BaseURL string

	// Store persists the session. Defaults to an in-memory store.
	Store tokenstore.Store

	// RefreshThreshold defaults to DefaultRefreshThreshold.
	RefreshThreshold time.Duration

	// RefreshTimeout defaults to DefaultRefreshTimeout.
	RefreshTimeout time.Duration

	// Timeout for unauthenticated issuer calls. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Transport is the base round tripper for all calls. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Registerer receives the session metrics when set.
	Registerer prometheus.Registerer

	// OnSessionInvalid is called once per failed refresh, after the session
	// has been cleared. It must not block.
	OnSessionInvalid func(error)

	// Now defaults to time.Now.
	Now func() time.Time
}

func (cfg *Config) setDefaults() error {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return errors.New("sessionsdk: base URL is required")
	}

	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("sessionsdk: invalid base URL %q", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimSuffix(base, "/")

	if cfg.Store == nil {
		cfg.Store = tokenstore.NewMemory()
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return nil
}
