package sessionsdk

import (
	"context"
	"slices"

	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
)

// claims decodes the stored access token. Decode failures read as absent.
func (c *Client) claims(ctx context.Context) (*jwtx.Claims, bool) {
	sess, ok := c.store.Read(ctx)
	if !ok {
		return nil, false
	}

	claims, err := jwtx.Decode(sess.AccessToken)
	if err != nil {
		c.logger.Debug("stored access token is unreadable", "err", err)
		return nil, false
	}
	return &claims, true
}

// IsAuthenticated reports whether a session exists whose access token
// expires strictly after now.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	claims, ok := c.claims(ctx)
	return ok && !claims.Expired(c.now())
}

// CurrentUser returns the identity carried by the access token.
func (c *Client) CurrentUser(ctx context.Context) (User, bool) {
	claims, ok := c.claims(ctx)
	if !ok {
		return User{}, false
	}
	return userFromClaims(claims), true
}

// UserRole returns the role carried by the access token.
func (c *Client) UserRole(ctx context.Context) (jwtx.Role, bool) {
	claims, ok := c.claims(ctx)
	if !ok {
		return "", false
	}
	return claims.Role, true
}

// HasPermission reports whether the access token grants p.
func (c *Client) HasPermission(ctx context.Context, p string) bool {
	claims, ok := c.claims(ctx)
	return ok && claims.HasPermission(p)
}

// HasRole reports whether the current role is one of roles.
func (c *Client) HasRole(ctx context.Context, roles ...jwtx.Role) bool {
	role, ok := c.UserRole(ctx)
	return ok && slices.Contains(roles, role)
}

// VerifyToken checks the stored session on startup. A token that is
// unreadable or within the refresh threshold is renewed first; the result is
// whether a usable session exists afterwards.
func (c *Client) VerifyToken(ctx context.Context) bool {
	sess, ok := c.store.Read(ctx)
	if !ok {
		return false
	}

	claims, err := jwtx.Decode(sess.AccessToken)
	if err == nil && claims.ExpiresIn(c.now()) > c.threshold {
		return true
	}

	if _, err := c.coordinator.Refresh(ctx, sess.AccessToken); err != nil {
		c.logger.Info("stored session could not be renewed", "err", err)
		return false
	}

	return c.IsAuthenticated(ctx)
}

// InitializeAuth is VerifyToken under the name applications call at startup.
func (c *Client) InitializeAuth(ctx context.Context) bool {
	return c.VerifyToken(ctx)
}
