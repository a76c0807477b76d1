package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/domain"
	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/store"
	"github.com/aussiebroadwan/dealerdesk/pkg/cryptox"
	"github.com/aussiebroadwan/dealerdesk/pkg/idx"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
)

const (
	DefaultResetTTL   = 30 * time.Minute
	MinPasswordLength = 8
)

// ResetNotifier delivers a freshly minted reset token to the account owner.
type ResetNotifier func(ctx context.Context, u domain.User, token string)

// Signer mints access tokens.
type Signer interface {
	Sign(claims jwtx.Claims) (string, error)
}

// AuthService implements the issuer contract the session client talks to.
type AuthService struct {
	Store      store.Store
	Signer     Signer
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	// Notify receives reset tokens. When nil they are only logged.
	Notify ResetNotifier

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// RegisterInput is a self-service account request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Role     jwtx.Role
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login verifies a username and password and opens a new session.
func (s *AuthService) Login(ctx context.Context, username, password string) (domain.TokenPair, domain.User, error) {
	l := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.TokenPair{}, domain.User{}, ErrInvalidCredentials
	}

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("login for unknown user", slog.String("username", username))
			return domain.TokenPair{}, domain.User{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		l.Info("login password mismatch", slog.String("user_id", u.ID))
		return domain.TokenPair{}, domain.User{}, ErrInvalidCredentials
	}

	var pair domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		pair, err = s.issue(ctx, tx, u, s.now())
		return err
	})
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	l.Info("user logged in", slog.String("user_id", u.ID), slog.String("role", u.Role.String()))
	return pair, u, nil
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated away revokes every token the user holds.
func (s *AuthService) Refresh(ctx context.Context, refreshOpaque string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	refreshOpaque = strings.TrimSpace(refreshOpaque)
	if refreshOpaque == "" {
		return domain.TokenPair{}, ErrInvalidRefresh
	}
	fp := cryptox.Fingerprint(refreshOpaque)

	var (
		pair   domain.TokenPair
		reused bool
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}

		if rt.Revoked {
			// Commit the family revocation, then report failure.
			reused = true
			return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, rt.UserID)
		}
		if now.After(rt.ExpiresAt) {
			return ErrInvalidRefresh
		}

		u, err := tx.Users().GetUserByID(ctx, rt.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}

		if err := tx.RefreshTokens().RevokeRefreshToken(ctx, fp); err != nil {
			return err
		}

		pair, err = s.issue(ctx, tx, u, now)
		return err
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	if reused {
		l.Warn("revoked refresh token presented, user sessions revoked")
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	return pair, nil
}

// Logout revokes a refresh token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshOpaque string) error {
	refreshOpaque = strings.TrimSpace(refreshOpaque)
	if refreshOpaque == "" {
		return nil
	}

	err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, cryptox.Fingerprint(refreshOpaque))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Register creates a non-admin account and logs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.TokenPair, domain.User, error) {
	l := slogx.FromContext(ctx)

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Role == "" {
		in.Role = jwtx.RoleRetailer
	}

	if err := validateRegistration(in); err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		l.Error("failed to hash password", "error", err)
		return domain.TokenPair{}, domain.User{}, err
	}

	now := s.now()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         in.Role,
		Permissions:  PermissionsFor(in.Role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var pair domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrUserExists
			}
			return err
		}
		pair, err = s.issue(ctx, tx, u, now)
		return err
	})
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	l.Info("user registered", slog.String("user_id", u.ID), slog.String("role", u.Role.String()))
	return pair, u, nil
}

// ChangePassword replaces the password of an authenticated user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := validatePassword("newPassword", next); err != nil {
		return err
	}

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := cryptox.VerifyPassword(current, u.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return err
	}

	if err := s.Store.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password changed", slog.String("user_id", u.ID))
	return nil
}

// ForgotPassword mints a reset token for the account behind email. Unknown
// addresses succeed silently so callers can't probe for accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	l := slogx.FromContext(ctx)

	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Debug("password reset for unknown email")
			return nil
		}
		return err
	}

	opaque, err := cryptox.NewOpaqueToken()
	if err != nil {
		return err
	}

	ttl := s.ResetTTL
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	now := s.now()

	err = s.Store.ResetTokens().CreateResetToken(ctx, domain.ResetToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.Fingerprint(opaque),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return err
	}

	if s.Notify != nil {
		s.Notify(ctx, u, opaque)
	} else {
		l.Info("password reset token issued", slog.String("user_id", u.ID))
		l.Debug("password reset token", slog.String("user_id", u.ID), slog.String("token", opaque))
	}
	return nil
}

// ResetPassword redeems a reset token. It also revokes every refresh token
// the user holds, so other sessions have to log in again.
func (s *AuthService) ResetPassword(ctx context.Context, token, next string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidReset
	}
	if err := validatePassword("newPassword", next); err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return err
	}

	now := s.now()
	fp := cryptox.Fingerprint(token)

	var userID string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.ResetTokens().GetResetTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidReset
			}
			return err
		}
		if rt.UsedAt != nil || now.After(rt.ExpiresAt) {
			return ErrInvalidReset
		}

		if err := tx.ResetTokens().MarkResetTokenUsed(ctx, rt.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidReset
			}
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, rt.UserID, hash); err != nil {
			return err
		}
		userID = rt.UserID
		return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, rt.UserID)
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password reset", slog.String("user_id", userID))
	return nil
}

// GetUser fetches a user by id.
func (s *AuthService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// issue signs an access token and stores a fresh refresh token for u.
func (s *AuthService) issue(ctx context.Context, tx store.Tx, u domain.User, now time.Time) (domain.TokenPair, error) {
	access, err := s.Signer.Sign(jwtx.NewAccessClaims(
		u.ID,
		u.Username,
		u.Role,
		u.Permissions,
		s.AccessTTL,
		s.Issuer,
		now,
	))
	if err != nil {
		return domain.TokenPair{}, err
	}

	refreshOpaque, err := cryptox.NewOpaqueToken()
	if err != nil {
		return domain.TokenPair{}, err
	}

	err = tx.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.Fingerprint(refreshOpaque),
		ExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt: now,
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshOpaque,
		ExpiresIn:    s.AccessTTL,
	}, nil
}

func validateRegistration(in RegisterInput) error {
	if n := utf8.RuneCountInString(in.Username); n < 3 || n > 64 {
		return &ValidationError{Field: "username", Message: "Username must be between 3 and 64 characters"}
	}
	if strings.ContainsAny(in.Username, " \t\r\n") {
		return &ValidationError{Field: "username", Message: "Username must not contain whitespace"}
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return &ValidationError{Field: "email", Message: "Email address is invalid"}
	}
	if err := validatePassword("password", in.Password); err != nil {
		return err
	}
	if in.Role == jwtx.RoleAdmin {
		return ErrRoleNotAllowed
	}
	if !selfRegistrable(in.Role) {
		return &ValidationError{Field: "role", Message: "Unknown role"}
	}
	return nil
}

func validatePassword(field, p string) error {
	if utf8.RuneCountInString(p) < MinPasswordLength {
		return &ValidationError{Field: field, Message: "Password must be at least 8 characters"}
	}
	return nil
}
