package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/idx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// BootstrapService seeds the two first-run accounts. On every start after
// the first it is a no-op.
type BootstrapService struct {
	Store store.Store

	// Optional operator-provided passwords. When empty, random passwords
	// are generated and logged once at seed time.
	AdminPassword string
	UserPassword  string
}

type seedAccount struct {
	username string
	role     domain.Role
	password string
}

// Seed creates the bootstrap "admin" and "user" accounts when the account
// store is empty. Both are active with TOTP disabled.
func (s *BootstrapService) Seed(ctx context.Context) error {
	l := slogx.FromContext(ctx)

	empty, err := s.Store.Accounts().IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap check: %w", err)
	}
	if !empty {
		return nil
	}

	seeds := []seedAccount{
		{username: "admin", role: domain.RoleAdmin, password: s.AdminPassword},
		{username: "user", role: domain.RoleUser, password: s.UserPassword},
	}

	for i := range seeds {
		if seeds[i].password != "" {
			continue
		}
		generated, err := cryptox.GeneratePassword()
		if err != nil {
			return fmt.Errorf("bootstrap password: %w", err)
		}
		seeds[i].password = generated
		// The only delivery channel for a generated bootstrap password
		// is the startup log. Operators are expected to rotate it.
		l.Warn("generated bootstrap password",
			slog.String("username", seeds[i].username),
			slog.String("password", generated),
		)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, seed := range seeds {
			hash, err := cryptox.HashPassword(seed.password)
			if err != nil {
				return fmt.Errorf("hash bootstrap password: %w", err)
			}
			account := domain.Account{
				ID:           idx.New().String(),
				Username:     seed.username,
				PasswordHash: hash,
				Role:         seed.role,
				IsActive:     true,
			}
			if err := tx.Accounts().CreateAccount(ctx, account); err != nil {
				return fmt.Errorf("create bootstrap account %q: %w", seed.username, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.Info("seeded bootstrap accounts")
	return nil
}
