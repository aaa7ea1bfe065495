package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPEnrollment is returned by Setup. The secret is shown to the user
// exactly once, alongside the otpauth URL used to render a QR code.
type TOTPEnrollment struct {
	Secret string
	URL    string
}

// TOTPService drives the per-account second-factor state machine:
// disabled -> (Setup) -> pending verification -> (Enable) -> enabled.
// Every mutation runs inside a store transaction so concurrent Setup/Enable
// calls for the same account serialize on the row.
type TOTPService struct {
	Store  store.Store
	Issuer string // issuer label shown in authenticator apps
}

// Setup generates a fresh TOTP secret for the account and stores it without
// enabling the second factor. Re-invoking while still pending overwrites the
// previous secret, so only the most recently issued secret can ever be
// enabled.
func (s *TOTPService) Setup(ctx context.Context, accountID string) (TOTPEnrollment, error) {
	var enrollment TOTPEnrollment

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		account, err := tx.Accounts().GetAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account.TOTPEnabled {
			return ErrTOTPAlreadyEnabled
		}

		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.Issuer,
			AccountName: account.Username,
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return fmt.Errorf("generate totp key: %w", err)
		}

		if err := tx.Accounts().UpdateTOTPSecret(ctx, accountID, key.Secret()); err != nil {
			return fmt.Errorf("store totp secret: %w", err)
		}

		enrollment = TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}
		return nil
	})
	if err != nil {
		return TOTPEnrollment{}, err
	}
	return enrollment, nil
}

// Enable verifies code against the pending secret and flips the account to
// enabled. The secret is re-read inside the transaction, so the code must
// match whatever Setup stored last; a token for an overwritten secret fails.
func (s *TOTPService) Enable(ctx context.Context, accountID, code string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		account, err := tx.Accounts().GetAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account.TOTPEnabled {
			return ErrTOTPAlreadyEnabled
		}
		if account.TOTPSecret == nil || *account.TOTPSecret == "" {
			return ErrTOTPNotEnrolled
		}
		if !VerifyCode(*account.TOTPSecret, code) {
			return ErrInvalidTOTP
		}
		return tx.Accounts().EnableTOTP(ctx, accountID)
	})
}

// Disable turns the second factor off and clears the stored secret. No code
// is required; see the product note in DESIGN.md.
func (s *TOTPService) Disable(ctx context.Context, accountID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Accounts().GetAccountByID(ctx, accountID); err != nil {
			return err
		}
		return tx.Accounts().DisableTOTP(ctx, accountID)
	})
}

// VerifyCode reports whether code matches the current time-step code for
// secret, allowing the standard one-step clock skew either way. Malformed
// input returns false, never an error.
func VerifyCode(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, secret)
}

// GenerateCode returns the current six-digit code for secret. Only used by
// tests and automation, never exposed to end users.
func GenerateCode(secret string) (string, error) {
	code, err := totp.GenerateCode(secret, timeNow())
	if err != nil {
		return "", errors.New("totp: invalid secret")
	}
	return code, nil
}

// EnrollmentURI builds an otpauth:// URI deterministically, without any I/O.
// Useful when the secret already exists and only the URI needs rebuilding.
func EnrollmentURI(issuer, label, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", "30")
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + label,
		RawQuery: v.Encode(),
	}
	return u.String()
}
