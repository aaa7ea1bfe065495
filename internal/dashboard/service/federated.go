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
	ErrEmailTaken        = errors.New("email_taken")
	ErrInvalidCredential = errors.New("invalid_credential")
)

// FederatedAuthService verifies email/password logins against the
// federated-credential table, and carries the admin-gated management
// operations for that table. The record space is fully independent from
// local accounts; the same person may hold entries in both.
type FederatedAuthService struct {
	Store store.Store
}

// Login verifies the email/password pair against an active federated
// credential. The hash comparison happens in-process after the lookup,
// which satisfies the same contract as a storage-side predicate: the hash
// never leaves this function and "no such email" is indistinguishable from
// "wrong password".
func (s *FederatedAuthService) Login(ctx context.Context, email, password string) (domain.Principal, error) {
	cred, err := s.Store.FederatedCredentials().GetActiveByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Principal{}, ErrInvalidCredentials
		}
		return domain.Principal{}, err
	}

	if err := cryptox.VerifyPassword(password, cred.PasswordHash); err != nil {
		return domain.Principal{}, ErrInvalidCredentials
	}

	return domain.Principal{
		ID:         cred.ID,
		Email:      cred.Email,
		Role:       cred.Role,
		Provenance: domain.ProvenanceFederatedPassword,
	}, nil
}

// CreateCredential provisions an allow-list entry. Only reachable through
// admin-gated handlers.
func (s *FederatedAuthService) CreateCredential(ctx context.Context, email, password string, role domain.Role, isActive bool) (domain.FederatedCredential, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" || !role.Valid() {
		return domain.FederatedCredential{}, ErrInvalidCredential
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.FederatedCredential{}, err
	}

	cred := domain.FederatedCredential{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     isActive,
	}
	if err := s.Store.FederatedCredentials().Create(ctx, cred); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.FederatedCredential{}, ErrEmailTaken
		}
		return domain.FederatedCredential{}, err
	}
	return s.Store.FederatedCredentials().GetByID(ctx, cred.ID)
}

func (s *FederatedAuthService) ListCredentials(ctx context.Context) ([]domain.FederatedCredential, error) {
	return s.Store.FederatedCredentials().List(ctx)
}

func (s *FederatedAuthService) UpdateCredential(ctx context.Context, id, email string, role domain.Role, isActive bool) error {
	email = normalizeEmail(email)
	if email == "" || !role.Valid() {
		return ErrInvalidCredential
	}
	if err := s.Store.FederatedCredentials().Update(ctx, id, email, role, isActive); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *FederatedAuthService) SetCredentialPassword(ctx context.Context, id, password string) error {
	if password == "" {
		return ErrInvalidCredential
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}
	return s.Store.FederatedCredentials().UpdatePasswordHash(ctx, id, hash)
}

func (s *FederatedAuthService) DeleteCredential(ctx context.Context, id string) error {
	return s.Store.FederatedCredentials().Delete(ctx, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
