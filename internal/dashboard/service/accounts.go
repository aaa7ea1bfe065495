package service

import (
	"context"
	"errors"
	"strings"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/idx"
)

var (
	ErrUsernameTaken  = errors.New("username_taken")
	ErrInvalidAccount = errors.New("invalid_account")
)

// AccountService is the admin-facing provisioning surface for local
// accounts. Every caller is expected to have been role-gated already.
type AccountService struct {
	Store store.Store
}

func (s *AccountService) Create(ctx context.Context, username, password string, role domain.Role, isActive bool) (domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || !role.Valid() {
		return domain.Account{}, ErrInvalidAccount
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Account{}, err
	}

	account := domain.Account{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     isActive,
	}
	if err := s.Store.Accounts().CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, ErrUsernameTaken
		}
		return domain.Account{}, err
	}
	return s.Store.Accounts().GetAccountByID(ctx, account.ID)
}

func (s *AccountService) Get(ctx context.Context, id string) (domain.Account, error) {
	return s.Store.Accounts().GetAccountByID(ctx, id)
}

func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	return s.Store.Accounts().ListAccounts(ctx)
}

func (s *AccountService) Update(ctx context.Context, id, username string, role domain.Role, isActive bool) error {
	username = strings.TrimSpace(username)
	if username == "" || !role.Valid() {
		return ErrInvalidAccount
	}
	if err := s.Store.Accounts().UpdateAccount(ctx, id, username, role, isActive); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

func (s *AccountService) SetPassword(ctx context.Context, id, password string) error {
	if password == "" {
		return ErrInvalidAccount
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}
	return s.Store.Accounts().UpdatePasswordHash(ctx, id, hash)
}

// Delete removes the account outright. No tombstone is kept.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	return s.Store.Accounts().DeleteAccount(ctx, id)
}
