package service

import "errors"

// Authentication error taxonomy. Handlers map these onto distinct
// user-facing messages so users can self-correct without learning anything
// that aids credential guessing.
var (
	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password. The two cases must never be distinguishable.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrTOTPRequired means the credentials were valid but a second factor
	// is missing. Callers should re-prompt rather than fail outright.
	ErrTOTPRequired = errors.New("totp_required")

	// ErrInvalidTOTP means a second factor was presented but wrong.
	ErrInvalidTOTP = errors.New("invalid_totp")

	// ErrNotConfigured means operator-supplied configuration is missing.
	// Fatal until fixed externally; retrying cannot help.
	ErrNotConfigured = errors.New("not_configured")

	// ErrNotAuthorized means the identity provider authenticated the user
	// but they are not entitled to this application.
	ErrNotAuthorized = errors.New("not_authorized")

	// ErrUpstream wraps identity-provider or automation-backend call
	// failures. Safe to retry by re-invoking the same operation.
	ErrUpstream = errors.New("upstream_protocol_error")

	ErrTOTPAlreadyEnabled = errors.New("totp_already_enabled")
	ErrTOTPNotEnrolled    = errors.New("totp_not_enrolled")
)
