package service

import (
	"context"
	"testing"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store/drivers/sqlite"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/idx"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func createTestAccount(t *testing.T, st store.Store, username, password string, role domain.Role, active bool) domain.Account {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	account := domain.Account{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     active,
	}
	require.NoError(t, st.Accounts().CreateAccount(context.Background(), account))
	return account
}

func createTestCredential(t *testing.T, st store.Store, email, password string, role domain.Role, active bool) domain.FederatedCredential {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	cred := domain.FederatedCredential{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     active,
	}
	require.NoError(t, st.FederatedCredentials().Create(context.Background(), cred))
	return cred
}
