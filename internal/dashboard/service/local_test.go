package service

import (
	"context"
	"testing"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"

	"github.com/stretchr/testify/require"
)

func TestLocalLogin(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &LocalAuthService{Store: st}

	account := createTestAccount(t, st, "alice", "correct horse", domain.RoleAdmin, true)
	createTestAccount(t, st, "bob", "hunter2", domain.RoleUser, false)

	t.Run("valid credentials produce a local principal", func(t *testing.T) {
		result, err := svc.Login(ctx, "alice", "correct horse", "")
		require.NoError(t, err)
		require.Equal(t, account.ID, result.Principal.ID)
		require.Equal(t, "alice", result.Principal.Username)
		require.Equal(t, domain.RoleAdmin, result.Principal.Role)
		require.Equal(t, domain.ProvenanceLocal, result.Principal.Provenance)
		require.False(t, result.TOTPEnabled)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice", "wrong", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown username", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", "whatever", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive account is indistinguishable from unknown", func(t *testing.T) {
		_, err := svc.Login(ctx, "bob", "hunter2", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("totp code ignored when factor disabled", func(t *testing.T) {
		result, err := svc.Login(ctx, "alice", "correct horse", "000000")
		require.NoError(t, err)
		require.Equal(t, account.ID, result.Principal.ID)
	})
}

func TestLocalLoginWithTOTP(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &LocalAuthService{Store: st}
	totpSvc := &TOTPService{Store: st, Issuer: "OpsDesk"}

	account := createTestAccount(t, st, "carol", "letmein", domain.RoleUser, true)

	enrollment, err := totpSvc.Setup(ctx, account.ID)
	require.NoError(t, err)
	code, err := GenerateCode(enrollment.Secret)
	require.NoError(t, err)
	require.NoError(t, totpSvc.Enable(ctx, account.ID, code))

	t.Run("missing code yields totp required", func(t *testing.T) {
		_, err := svc.Login(ctx, "carol", "letmein", "")
		require.ErrorIs(t, err, ErrTOTPRequired)
	})

	t.Run("wrong code yields invalid totp", func(t *testing.T) {
		_, err := svc.Login(ctx, "carol", "letmein", "000000")
		require.ErrorIs(t, err, ErrInvalidTOTP)
	})

	t.Run("valid code completes login", func(t *testing.T) {
		code, err := GenerateCode(enrollment.Secret)
		require.NoError(t, err)

		result, err := svc.Login(ctx, "carol", "letmein", code)
		require.NoError(t, err)
		require.True(t, result.TOTPEnabled)
		require.Equal(t, domain.ProvenanceLocal, result.Principal.Provenance)
	})

	t.Run("wrong password wins over missing code", func(t *testing.T) {
		// The password check must come first, so a bad password never
		// reveals whether a TOTP prompt would have appeared.
		_, err := svc.Login(ctx, "carol", "wrong", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password wins over wrong code", func(t *testing.T) {
		_, err := svc.Login(ctx, "carol", "wrong", "000000")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
