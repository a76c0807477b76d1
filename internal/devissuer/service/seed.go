package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/domain"
	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/store"
	"github.com/aussiebroadwan/dealerdesk/pkg/cryptox"
	"github.com/aussiebroadwan/dealerdesk/pkg/idx"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
)

// SeedUser describes an account created on first start.
type SeedUser struct {
	Username string
	Email    string
	FullName string
	Role     jwtx.Role
}

// DefaultSeedUsers is one account per role.
var DefaultSeedUsers = []SeedUser{
	{Username: "admin", Email: "admin@dealerdesk.local", FullName: "Desk Admin", Role: jwtx.RoleAdmin},
	{Username: "distributor", Email: "distributor@dealerdesk.local", FullName: "Dana Distributor", Role: jwtx.RoleDistributor},
	{Username: "salesman", Email: "salesman@dealerdesk.local", FullName: "Sam Salesman", Role: jwtx.RoleSalesman},
	{Username: "retailer", Email: "retailer@dealerdesk.local", FullName: "Rita Retailer", Role: jwtx.RoleRetailer},
}

// Seed creates users when the store is empty. All of them share password.
// If password is empty a random one is generated and logged once.
// Returns the password used, or "" when the store already had users.
func Seed(ctx context.Context, st store.Store, users []SeedUser, password string) (string, error) {
	l := slogx.FromContext(ctx)

	n, err := st.Users().CountUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		l.Debug("users present, skipping seed", slog.Int64("count", n))
		return "", nil
	}

	if password == "" {
		if password, err = cryptox.RandomPassword(16); err != nil {
			return "", err
		}
		l.Warn("generated seed password, this will not be shown again", slog.String("password", password))
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return "", err
	}

	now := time.Now()
	err = st.WithTx(ctx, func(tx store.Tx) error {
		for _, su := range users {
			err := tx.Users().CreateUser(ctx, domain.User{
				ID:           idx.New().String(),
				Username:     su.Username,
				Email:        su.Email,
				FullName:     su.FullName,
				PasswordHash: hash,
				Role:         su.Role,
				Permissions:  PermissionsFor(su.Role),
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
				return fmt.Errorf("seed %s: %w", su.Username, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	l.Info("seeded users", slog.Int("count", len(users)))
	return password, nil
}
