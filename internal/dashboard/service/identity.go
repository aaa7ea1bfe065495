package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/pkg/sessionstore"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"

	"github.com/golang-jwt/jwt/v5"
	"log/slog"
)

const defaultTokenTTL = 12 * time.Hour

// IdentityService turns a Principal into an access token, verifies tokens on
// later requests, and persists session records so identity survives a
// restart without re-running any authentication protocol.
type IdentityService struct {
	Sessions *sessionstore.Store
	Secret   []byte
	TokenTTL time.Duration

	Issuer string
}

type principalClaims struct {
	Username    string            `json:"username,omitempty"`
	Email       string            `json:"email,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	Role        domain.Role       `json:"role"`
	Provenance  domain.Provenance `json:"provenance"`
	jwt.RegisteredClaims
}

// Establish records p as the active session and mints its access token.
// Called once per successful login, whatever the scheme.
func (s *IdentityService) Establish(ctx context.Context, p domain.Principal) (string, error) {
	if err := s.Sessions.Put(p); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}

	slogx.FromContext(ctx).Info("session established",
		slog.String("principal_id", p.ID),
		slog.String("provenance", string(p.Provenance)),
	)

	return s.IssueToken(p)
}

// Resume returns the persisted Principal from a previous run, if one exists.
func (s *IdentityService) Resume(ctx context.Context) (domain.Principal, string, bool, error) {
	p, ok, err := s.Sessions.Restore()
	if err != nil || !ok {
		return domain.Principal{}, "", false, err
	}

	token, err := s.IssueToken(p)
	if err != nil {
		return domain.Principal{}, "", false, err
	}

	slogx.FromContext(ctx).Info("session restored",
		slog.String("principal_id", p.ID),
		slog.String("provenance", string(p.Provenance)),
	)
	return p, token, true, nil
}

// Logout clears every persisted session record. Tokens already issued stay
// valid until expiry; the session file is the durable state.
func (s *IdentityService) Logout(ctx context.Context) error {
	if err := s.Sessions.Clear(); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("session cleared")
	return nil
}

// IssueToken signs a short-lived HS256 token carrying the principal's
// identity claims.
func (s *IdentityService) IssueToken(p domain.Principal) (string, error) {
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := timeNow()
	claims := principalClaims{
		Username:    p.Username,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		Provenance:  p.Provenance,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates the signature and expiry of an access token and
// rebuilds the Principal from its claims.
func (s *IdentityService) VerifyToken(tokenString string) (domain.Principal, error) {
	var claims principalClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return domain.Principal{}, ErrNotAuthorized
	}

	if !claims.Provenance.Valid() || !claims.Role.Valid() {
		return domain.Principal{}, ErrNotAuthorized
	}

	return domain.Principal{
		ID:          claims.Subject,
		Username:    claims.Username,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
		Provenance:  claims.Provenance,
	}, nil
}
