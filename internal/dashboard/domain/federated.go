package domain

import "time"

// FederatedCredential is an allow-list entry for enterprise identities. It
// is an independent record space from Account: the same person may hold an
// entry in both stores with no link between them.
//
// The federated-password scheme verifies email/password against this record;
// the OIDC scheme uses it purely as an entitlement allow-list.
type FederatedCredential struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FederatedProfile is upserted after a successful device-flow or OIDC login.
// Exactly one row exists per ExternalSubjectID.
type FederatedProfile struct {
	ID                string
	ExternalSubjectID string // provider's stable user id, the upsert key
	Email             string
	DisplayName       string
	TenantID          string
	AccessToken       string
	RefreshToken      string
	TokenExpiresAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
