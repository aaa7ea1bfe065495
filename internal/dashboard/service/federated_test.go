package service

import (
	"context"
	"testing"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"

	"github.com/stretchr/testify/require"
)

func TestFederatedLogin(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &FederatedAuthService{Store: st}

	cred := createTestCredential(t, st, "ops@example.com", "s3cret", domain.RoleAdmin, true)
	createTestCredential(t, st, "gone@example.com", "s3cret", domain.RoleUser, false)

	t.Run("valid credentials produce a federated principal", func(t *testing.T) {
		principal, err := svc.Login(ctx, "ops@example.com", "s3cret")
		require.NoError(t, err)
		require.Equal(t, cred.ID, principal.ID)
		require.Equal(t, "ops@example.com", principal.Email)
		require.Equal(t, domain.RoleAdmin, principal.Role)
		require.Equal(t, domain.ProvenanceFederatedPassword, principal.Provenance)
	})

	t.Run("email lookup is case and whitespace insensitive", func(t *testing.T) {
		principal, err := svc.Login(ctx, "  OPS@Example.COM ", "s3cret")
		require.NoError(t, err)
		require.Equal(t, cred.ID, principal.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "ops@example.com", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody@example.com", "s3cret")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive credential is indistinguishable from unknown", func(t *testing.T) {
		_, err := svc.Login(ctx, "gone@example.com", "s3cret")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestFederatedCredentialAdministration(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &FederatedAuthService{Store: st}

	t.Run("create normalizes email", func(t *testing.T) {
		cred, err := svc.CreateCredential(ctx, " New@Example.COM ", "pw", domain.RoleUser, true)
		require.NoError(t, err)
		require.Equal(t, "new@example.com", cred.Email)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		_, err := svc.CreateCredential(ctx, "new@example.com", "pw", domain.RoleUser, true)
		require.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("invalid input rejected", func(t *testing.T) {
		_, err := svc.CreateCredential(ctx, "", "pw", domain.RoleUser, true)
		require.ErrorIs(t, err, ErrInvalidCredential)
		_, err = svc.CreateCredential(ctx, "x@example.com", "", domain.RoleUser, true)
		require.ErrorIs(t, err, ErrInvalidCredential)
		_, err = svc.CreateCredential(ctx, "x@example.com", "pw", domain.Role("root"), true)
		require.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("deactivating blocks login", func(t *testing.T) {
		cred, err := svc.CreateCredential(ctx, "temp@example.com", "pw", domain.RoleUser, true)
		require.NoError(t, err)

		_, err = svc.Login(ctx, "temp@example.com", "pw")
		require.NoError(t, err)

		require.NoError(t, svc.UpdateCredential(ctx, cred.ID, cred.Email, cred.Role, false))
		_, err = svc.Login(ctx, "temp@example.com", "pw")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("password rotation", func(t *testing.T) {
		cred, err := svc.CreateCredential(ctx, "rotate@example.com", "old", domain.RoleUser, true)
		require.NoError(t, err)

		require.NoError(t, svc.SetCredentialPassword(ctx, cred.ID, "new"))
		_, err = svc.Login(ctx, "rotate@example.com", "old")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = svc.Login(ctx, "rotate@example.com", "new")
		require.NoError(t, err)
	})

	t.Run("delete removes the credential", func(t *testing.T) {
		cred, err := svc.CreateCredential(ctx, "bye@example.com", "pw", domain.RoleUser, true)
		require.NoError(t, err)
		require.NoError(t, svc.DeleteCredential(ctx, cred.ID))

		_, err = svc.Login(ctx, "bye@example.com", "pw")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
