package sessionsdk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
)

// Client is one session against the issuer. Clients share nothing, so
// several can run side by side with separate stores.
type Client struct {
	baseURL   string
	store     tokenstore.Store
	threshold time.Duration
	now       func() time.Time
	logger    *slog.Logger

	coordinator *RefreshCoordinator
	transport   *Transport

	// plain talks to the issuer without session handling.
	plain *http.Client

	// authorized sends every request through transport.
	authorized *http.Client
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	origin, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("sessionsdk: parse base URL: %w", err)
	}

	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("sessionsdk: register metrics: %w", err)
	}

	c := &Client{
		baseURL:   cfg.BaseURL,
		store:     cfg.Store,
		threshold: cfg.RefreshThreshold,
		now:       cfg.Now,
		logger:    cfg.Logger,
		plain: &http.Client{
			Transport: cfg.Transport,
			Timeout:   cfg.Timeout,
		},
	}

	c.coordinator = &RefreshCoordinator{
		store:     cfg.Store,
		renew:     c.renew,
		timeout:   cfg.RefreshTimeout,
		logger:    cfg.Logger,
		metrics:   m,
		onInvalid: cfg.OnSessionInvalid,
	}

	c.transport = &Transport{
		Base:        cfg.Transport,
		origin:      origin,
		store:       cfg.Store,
		coordinator: c.coordinator,
		threshold:   cfg.RefreshThreshold,
		now:         cfg.Now,
		logger:      cfg.Logger,
		metrics:     m,
	}

	// Worst case a request waits for a refresh, then goes out twice.
	c.authorized = &http.Client{
		Transport: c.transport,
		Timeout:   2*cfg.Timeout + cfg.RefreshTimeout,
	}

	return c, nil
}

// HTTPClient returns the client every business call should use. It attaches
// the session's bearer token and recovers from 401s.
func (c *Client) HTTPClient() *http.Client { return c.authorized }

// Do sends req through the session transport.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.authorized.Do(req)
}

// Store returns the backing token store.
func (c *Client) Store() tokenstore.Store { return c.store }

// Login exchanges credentials for a session and persists it. A failed login
// leaves the stored session untouched.
func (c *Client) Login(ctx context.Context, creds Credentials) (Session, error) {
	var tr TokenResponse
	if err := c.postIssuer(ctx, "login", PathLogin, "", creds, &tr, msgLoginFailed); err != nil {
		return Session{}, err
	}

	return c.establish(ctx, "login", &tr, msgLoginFailed)
}

// Register creates an account and logs it in.
func (c *Client) Register(ctx context.Context, reg Registration) (Session, error) {
	var tr TokenResponse
	if err := c.postIssuer(ctx, "register", PathRegister, "", reg, &tr, msgRegisterFailed); err != nil {
		return Session{}, err
	}

	return c.establish(ctx, "register", &tr, msgRegisterFailed)
}

func (c *Client) establish(ctx context.Context, op string, tr *TokenResponse, fallback string) (Session, error) {
	sess := tr.session()
	if !sess.Complete() {
		return Session{}, &AuthError{Op: op, StatusCode: http.StatusOK, Message: fallback + ": incomplete token response"}
	}

	if err := c.store.Write(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("sessionsdk: %s: persist session: %w", op, err)
	}

	c.logger.Info("session established", "op", op)
	return sess, nil
}

// Logout tells the issuer to revoke the refresh token and clears the stored
// session. The issuer call is best effort; only a failure to clear the local
// store is returned.
func (c *Client) Logout(ctx context.Context) error {
	if sess, ok := c.store.Read(ctx); ok {
		err := c.postIssuer(ctx, "logout", PathLogout, sess.AccessToken,
			LogoutRequest{RefreshToken: sess.RefreshToken}, nil, msgLogoutFailed)
		if err != nil {
			c.logger.Warn("logout notification failed, clearing session anyway", "err", err)
		}
	}

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("sessionsdk: logout: clear session: %w", err)
	}

	c.logger.Info("session cleared", "op", "logout")
	return nil
}

// renew calls the refresh endpoint. It is the coordinator's only way to
// reach the network.
func (c *Client) renew(ctx context.Context, refreshToken string) (Session, error) {
	var tr TokenResponse
	err := c.postIssuer(ctx, "refresh", PathRefresh, "", RefreshRequest{RefreshToken: refreshToken}, &tr, msgRefreshFailed)
	if err != nil {
		return Session{}, err
	}

	if tr.AccessToken == "" {
		return Session{}, &AuthError{Op: "refresh", StatusCode: http.StatusOK, Message: msgRefreshFailed + ": missing access token"}
	}

	// Issuers that don't rotate refresh tokens omit it.
	if tr.RefreshToken == "" {
		tr.RefreshToken = refreshToken
	}

	return tr.session(), nil
}
