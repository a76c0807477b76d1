package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
)

// AuthnMiddleware admits requests carrying a valid bearer access token. The
// verified claims go on the context and the subject on the request logger.
// Every rejection is a 401 so clients can take their refresh path.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			raw = strings.TrimSpace(raw)
			if !ok || raw == "" {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			switch {
			case errors.Is(err, jwtx.ErrExpired):
				writeBearerError(w, "token expired")
				return
			case err != nil:
				slogx.FromContext(r.Context()).Warn("access token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx := contextWithAuth(r.Context(), claims)
			ctx = slogx.WithContext(ctx, slogx.FromContext(ctx).With("user_id", claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeBearerError answers 401 with an RFC 6750 challenge.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, desc)
}
