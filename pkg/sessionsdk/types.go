package sessionsdk

import (
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
)

// Issuer endpoints, relative to Config.BaseURL.
const (
	PathLogin          = "/auth/login"
	PathRefresh        = "/auth/refresh"
	PathLogout         = "/auth/logout"
	PathRegister       = "/auth/register"
	PathChangePassword = "/auth/change-password"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
)

// Session is the persisted token pair.
type Session = tokenstore.Session

// ============================================================================
// Request Types
// ============================================================================

// Credentials is the body of POST /auth/login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the body of POST /auth/register.
type Registration struct {
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	FullName string    `json:"fullName,omitempty"`
	Role     jwtx.Role `json:"role,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest is the body of POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest is the body of POST /auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ForgotPasswordRequest is the body of POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ============================================================================
// Response Types
// ============================================================================

// TokenResponse is returned by login, refresh and register.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`

	// User is informational; the client always derives identity from the
	// access token's claims.
	User *User `json:"user,omitempty"`
}

func (r *TokenResponse) session() Session {
	return Session{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// MessageResponse is the body of simple acknowledgements and errors.
type MessageResponse struct {
	Message string `json:"message"`
}

// errorResponse covers both message-style and OAuth2-style error bodies.
type errorResponse struct {
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Identity
// ============================================================================

// User is the identity decoded from the current access token.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Role        jwtx.Role `json:"role"`
	Permissions []string  `json:"permissions,omitempty"`
}

func userFromClaims(c *jwtx.Claims) User {
	return User{
		ID:          c.Subject,
		Username:    c.Username,
		Role:        c.Role,
		Permissions: append([]string(nil), c.Permissions...),
	}
}
