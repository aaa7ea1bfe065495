package store

import (
	"context"
	"errors"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Sub-repositories keep concerns tidy and let services
// declare exactly which aggregates they touch.
type Store interface {
	Accounts() Accounts
	FederatedCredentials() FederatedCredentials
	FederatedProfiles() FederatedProfiles

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. All 2FA state
	// mutations go through this so concurrent setup/enable calls for the
	// same account serialize on the row instead of losing updates.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Prefer WithTx; the caller of Tx MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// Tx is a transactional store. It exposes the same repositories plus
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetActiveAccountByUsername is used during local login; it only
	// returns accounts with is_active = true.
	GetActiveAccountByUsername(ctx context.Context, username string) (domain.Account, error)

	// CreateAccount inserts a new account (id is provided by the app via ULID).
	CreateAccount(ctx context.Context, a domain.Account) error

	// ListAccounts returns all accounts ordered by creation date.
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// UpdateAccount mutates username, role, and is_active, bumping updated_at.
	UpdateAccount(ctx context.Context, id, username string, role domain.Role, isActive bool) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, id, newHash string) error

	// DeleteAccount removes the row (hard delete, no tombstone).
	DeleteAccount(ctx context.Context, id string) error

	// IsEmpty reports whether there are no accounts (bootstrap check).
	IsEmpty(ctx context.Context) (bool, error)

	// UpdateTOTPSecret stores a not-yet-enabled secret. Overwrites any
	// pending secret; enrollment is idempotent until enabled.
	UpdateTOTPSecret(ctx context.Context, id, secret string) error

	// EnableTOTP flips totp_enabled for the account.
	EnableTOTP(ctx context.Context, id string) error

	// DisableTOTP clears totp_enabled and the stored secret.
	DisableTOTP(ctx context.Context, id string) error
}

type FederatedCredentials interface {
	// GetActiveByEmail returns the active allow-list entry for email.
	GetActiveByEmail(ctx context.Context, email string) (domain.FederatedCredential, error)

	GetByID(ctx context.Context, id string) (domain.FederatedCredential, error)
	Create(ctx context.Context, c domain.FederatedCredential) error
	List(ctx context.Context) ([]domain.FederatedCredential, error)
	Update(ctx context.Context, id, email string, role domain.Role, isActive bool) error
	UpdatePasswordHash(ctx context.Context, id, newHash string) error
	Delete(ctx context.Context, id string) error
}

type FederatedProfiles interface {
	// Upsert inserts or updates a profile keyed on external_subject_id.
	// The update path refreshes email, display name, tokens, and expiry;
	// tenant_id is only set on insert.
	Upsert(ctx context.Context, p domain.FederatedProfile) error

	GetByExternalSubjectID(ctx context.Context, subjectID string) (domain.FederatedProfile, error)
}
