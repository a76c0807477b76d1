package domain

import (
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
)

// User is an account the issuer can log in.
type User struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	PasswordHash string // argon2id PHC string
	Role         jwtx.Role
	Permissions  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenPair is what login, refresh and register hand back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// RefreshToken models the stored refresh token record. Only the fingerprint
// of the opaque value is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// ResetToken is a single-use password reset grant.
type ResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
