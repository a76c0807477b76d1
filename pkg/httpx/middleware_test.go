package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/cryptox"
	"github.com/aussiebroadwan/dealerdesk/pkg/httpx"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestAuthnAndAuthz(t *testing.T) {
	pemKey, err := cryptox.NewSigningKeyPEM()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("k1", pemKey)
	require.NoError(t, err)
	verifier := signer.Verifier("issuer")

	mint := func(role jwtx.Role, perms []string, ttl time.Duration) string {
		tok, err := signer.Sign(jwtx.NewAccessClaims("u1", "alice", role, perms, ttl, "issuer", time.Now()))
		require.NoError(t, err)
		return tok
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, found := httpx.ClaimsFromContext(r.Context())
		require.True(t, found)
		_, _ = w.Write([]byte(c.Subject))
	})

	h := httpx.Chain(ok,
		httpx.AuthnMiddleware(verifier),
		httpx.RequireRole("admin", "distributor"),
		httpx.RequirePermission("orders:read"),
	)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"expired", "Bearer " + mint(jwtx.RoleAdmin, []string{"orders:read"}, -time.Minute), http.StatusUnauthorized},
		{"wrong role", "Bearer " + mint(jwtx.RoleRetailer, []string{"orders:read"}, time.Minute), http.StatusForbidden},
		{"missing permission", "Bearer " + mint(jwtx.RoleAdmin, nil, time.Minute), http.StatusForbidden},
		{"allowed", "Bearer " + mint(jwtx.RoleDistributor, []string{"orders:read"}, time.Minute), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)
			require.Equal(t, tt.code, rec.Code)

			if tt.code == http.StatusUnauthorized {
				require.True(t, strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer"))
				require.Contains(t, rec.Body.String(), `"message"`)
			}
		})
	}
}
