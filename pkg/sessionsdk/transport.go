package sessionsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/idx"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
)

type retryKey struct{}

// withRetried marks ctx as belonging to a request that has already been
// resent once.
func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, true)
}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retryKey{}).(bool)
	return v
}

// retryKind is what to do with a request whose first attempt got a 401.
type retryKind int

const (
	// propagateOriginal hands the original 401 back to the caller.
	propagateOriginal retryKind = iota

	// retryWithToken resends the request once with a renewed token.
	retryWithToken
)

type retryDecision struct {
	kind  retryKind
	token string
}

// Transport is an http.RoundTripper that authorizes requests from the
// session store. It never modifies the caller's request. Only requests to
// the issuer's origin carry the session; anything else, including redirect
// hops to another host, goes out untouched.
type Transport struct {
	// Base performs the actual round trips.
	Base http.RoundTripper

	origin      *url.URL
	store       tokenstore.Store
	coordinator *RefreshCoordinator
	threshold   time.Duration
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !sameOrigin(t.origin, req.URL) {
		return t.base().RoundTrip(req)
	}

	ctx := req.Context()

	token, err := t.credential(ctx)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	reqID := req.Header.Get(slogx.RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
	}

	resp, err := t.send(req, token, reqID)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || token == "" || isRetried(ctx) {
		return resp, nil
	}

	d := t.afterUnauthorized(req, token)
	if d.kind == propagateOriginal {
		return resp, nil
	}

	retry, err := rewind(req)
	if err != nil {
		t.logger.Debug("request cannot be resent, returning original 401", "err", err, "req_id", reqID)
		return resp, nil
	}
	drain(resp)

	t.metrics.retries.Inc()
	t.logger.Debug("resending request with refreshed token", "method", req.Method, "path", req.URL.Path, "req_id", reqID)

	return t.send(retry, d.token, reqID)
}

// credential returns the token to attach before the request leaves. An
// empty token means the request goes out anonymously.
func (t *Transport) credential(ctx context.Context) (string, error) {
	sess, ok := t.store.Read(ctx)
	if !ok {
		return "", nil
	}

	claims, err := jwtx.Decode(sess.AccessToken)
	if err != nil {
		// Let the backend judge it; a 401 takes the reactive path.
		t.logger.Debug("stored access token is unreadable", "err", err)
		return sess.AccessToken, nil
	}

	remaining := claims.ExpiresIn(t.now())
	switch {
	case remaining <= 0:
		tok, err := t.coordinator.Refresh(ctx, sess.AccessToken)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			// Session is gone, the backend decides what an anonymous
			// caller may do.
			return "", nil
		}
		return tok, nil

	case remaining <= t.threshold:
		t.logger.Debug("access token near expiry, refreshing in background", "remaining", remaining)
		t.coordinator.Start(sess.AccessToken)
	}

	return sess.AccessToken, nil
}

// afterUnauthorized resolves a rejected first attempt into a retry or a
// propagation of the original response.
func (t *Transport) afterUnauthorized(req *http.Request, rejected string) retryDecision {
	tok, err := t.coordinator.Refresh(req.Context(), rejected)
	switch {
	case err == nil:
		return retryDecision{kind: retryWithToken, token: tok}
	case errors.Is(err, ErrSessionInvalid):
		t.logger.Info("session invalid after 401", "err", err)
	default:
		t.logger.Debug("gave up waiting for refresh", "err", err)
	}
	return retryDecision{kind: propagateOriginal}
}

// send clones req, authorizes the clone and performs the round trip.
func (t *Transport) send(req *http.Request, token, reqID string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	out.Header.Set(slogx.RequestIDHeader, reqID)

	return t.base().RoundTrip(out)
}

// sameOrigin reports whether u has origin's scheme, host and port.
func sameOrigin(origin, u *url.URL) bool {
	if origin == nil || u == nil || !strings.EqualFold(origin.Scheme, u.Scheme) {
		return false
	}
	return hostPort(origin) == hostPort(u)
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	return net.JoinHostPort(strings.ToLower(u.Hostname()), port)
}

// rewind prepares req for its single resend.
func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(withRetried(req.Context()))
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}

	if req.GetBody == nil {
		return nil, errors.New("request body is not replayable")
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	retry.Body = body
	return retry, nil
}
