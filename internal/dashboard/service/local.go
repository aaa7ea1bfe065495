package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// dummyHash is compared against when the username does not exist, so the
// unknown-user path costs the same as a real password mismatch.
var dummyHash = func() string {
	h, err := cryptox.HashPassword("opsdesk-timing-equalizer")
	if err != nil {
		panic(err)
	}
	return h
}()

// LoginResult carries the normalized Principal plus the second-factor flag
// the login response reports back to the UI.
type LoginResult struct {
	Principal   domain.Principal
	TOTPEnabled bool
}

// LocalAuthService verifies username/password logins against the account
// store and gates the TOTP second factor.
type LocalAuthService struct {
	Store store.Store
}

// Login authenticates a local account.
//
// Credential verification strictly precedes second-factor verification: a
// wrong password must not be distinguishable by whether a TOTP prompt
// appears. When the account has TOTP enabled, a missing code yields
// ErrTOTPRequired and a wrong one ErrInvalidTOTP. Accounts without TOTP
// ignore any supplied code entirely.
func (s *LocalAuthService) Login(ctx context.Context, username, password, totpCode string) (LoginResult, error) {
	l := slogx.FromContext(ctx)

	account, err := s.Store.Accounts().GetActiveAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash comparison anyway so unknown usernames are
			// not detectable by timing.
			_ = cryptox.VerifyPassword(password, dummyHash)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		l.Info("local login rejected", slog.String("username", username))
		return LoginResult{}, ErrInvalidCredentials
	}

	if account.TOTPEnabled {
		if totpCode == "" {
			return LoginResult{}, ErrTOTPRequired
		}
		if account.TOTPSecret == nil || !VerifyCode(*account.TOTPSecret, totpCode) {
			l.Info("local login rejected on second factor", slog.String("username", username))
			return LoginResult{}, ErrInvalidTOTP
		}
	}

	return LoginResult{
		Principal: domain.Principal{
			ID:         account.ID,
			Username:   account.Username,
			Role:       account.Role,
			Provenance: domain.ProvenanceLocal,
		},
		TOTPEnabled: account.TOTPEnabled,
	}, nil
}
