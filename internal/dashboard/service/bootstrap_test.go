package service

import (
	"context"
	"testing"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"

	"github.com/stretchr/testify/require"
)

func TestBootstrapSeed(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &BootstrapService{Store: st, AdminPassword: "admin-pw", UserPassword: "user-pw"}

	require.NoError(t, svc.Seed(ctx))

	accounts, err := st.Accounts().ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	byName := map[string]domain.Account{}
	for _, a := range accounts {
		byName[a.Username] = a
	}

	admin, ok := byName["admin"]
	require.True(t, ok)
	require.Equal(t, domain.RoleAdmin, admin.Role)
	require.True(t, admin.IsActive)
	require.False(t, admin.TOTPEnabled)

	user, ok := byName["user"]
	require.True(t, ok)
	require.Equal(t, domain.RoleUser, user.Role)
	require.True(t, user.IsActive)
	require.False(t, user.TOTPEnabled)

	// Configured passwords work.
	local := &LocalAuthService{Store: st}
	_, err = local.Login(ctx, "admin", "admin-pw", "")
	require.NoError(t, err)
	_, err = local.Login(ctx, "user", "user-pw", "")
	require.NoError(t, err)
}

func TestBootstrapSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &BootstrapService{Store: st, AdminPassword: "admin-pw", UserPassword: "user-pw"}

	require.NoError(t, svc.Seed(ctx))
	require.NoError(t, svc.Seed(ctx))

	accounts, err := st.Accounts().ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
}

func TestBootstrapSkipsNonEmptyStore(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	createTestAccount(t, st, "existing", "pw", domain.RoleAdmin, true)

	svc := &BootstrapService{Store: st}
	require.NoError(t, svc.Seed(ctx))

	accounts, err := st.Accounts().ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func TestBootstrapGeneratesPasswords(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	svc := &BootstrapService{Store: st}
	require.NoError(t, svc.Seed(ctx))

	accounts, err := st.Accounts().ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
}
